package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line options
type AppOptions struct {
	ConfigFile   string
	SphereFile   string
	DataDir      string
	OutputFile   string
	RenderFormat string
	ReportCache  string
	Threshold    float64
	MinAngle     float64
	MaxPeaks     int
	Workers      int
	HttpPort     int
	ExtractOnly  bool
	RenderOnly   bool
	MqttMode     bool
	HttpMode     bool
}

// Runner is implemented by App; tests substitute a mock
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunExtract() error
	RunRender() error
	RunService() error
}

func main() {
	app := NewApp()
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("odfpeaks: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("odfpeaks", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.SphereFile, "sphere", "", "Sphere file (JSON or YAML) to load in addition to the configured spheres")
	fs.StringVar(&opts.DataDir, "data-dir", ".", "Directory containing *.odf.json samples and *.peaks.json reports")
	fs.BoolVar(&opts.ExtractOnly, "extract", false, "Extract peaks from *.odf.json files in --data-dir and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render peak reports to an image and exit")
	fs.StringVar(&opts.RenderFormat, "format", "png", "Render format: png, svg, vector-png or geojson")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --render mode (default peaks.<format>)")
	fs.StringVar(&opts.ReportCache, "report-cache", ".peaks-cache.json", "Path to the service report cache file")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.Float64Var(&opts.Threshold, "threshold", -1, "Relative peak threshold in [0, 1] (overrides config)")
	fs.Float64Var(&opts.MinAngle, "min-angle", -1, "Minimum separation angle in degrees (overrides config)")
	fs.IntVar(&opts.MaxPeaks, "max-peaks", -1, "Maximum peaks per sample, 0 for no limit (overrides config)")
	fs.IntVar(&opts.Workers, "workers", 0, "Worker goroutines for batch extraction (default GOMAXPROCS)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "odfpeaks version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ExtractOnly:
		return app.RunExtract()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "odfpeaks: no mode selected")
	fmt.Fprintln(out, "Use --extract to compute peaks for *.odf.json files")
	fmt.Fprintln(out, "Use --render to draw peak reports (--format png|svg|vector-png|geojson)")
	fmt.Fprintln(out, "Use --mqtt to run the MQTT service")
	fmt.Fprintln(out, "Use --http to run the HTTP server")
	fmt.Fprintln(out, "Use --mqtt --http to run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, spheres, sources and peak parameters")
	return nil
}
