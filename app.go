package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kwv/odfpeaks/mesh"
	"github.com/kwv/odfpeaks/peaks"
)

const (
	sampleSuffix = ".odf.json"
	reportSuffix = ".peaks.json"

	// samplePollInterval is how often sources with an apiUrl are fetched
	samplePollInterval = 30 * time.Second
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *mesh.Config
	Processor    *mesh.Processor
	StateTracker *mesh.StateTracker
	MQTTClient   *mesh.MQTTClient
	Publisher    *mesh.Publisher
	Metrics      *mesh.Metrics
	Registry     *prometheus.Registry

	Out io.Writer

	// CLI Flags (effectively dependencies)
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
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: mesh.NewStateTracker(),
		Out:          os.Stdout,
		DataDir:      ".",
		Threshold:    -1,
		MinAngle:     -1,
		MaxPeaks:     -1,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.SphereFile = opts.SphereFile
	a.DataDir = opts.DataDir
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.ReportCache = opts.ReportCache
	a.Threshold = opts.Threshold
	a.MinAngle = opts.MinAngle
	a.MaxPeaks = opts.MaxPeaks
	a.Workers = opts.Workers
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// resolvePath resolves a default file name relative to data-dir
func (a *App) resolvePath(path, defaultName string) string {
	if a.DataDir != "" && a.DataDir != "." && path == defaultName {
		return filepath.Join(a.DataDir, defaultName)
	}
	return path
}

// setup loads the configuration and spheres and creates the processor.
// A missing default config file is allowed when a sphere is given directly.
func (a *App) setup() error {
	configPath := a.resolvePath(a.ConfigFile, "config.yaml")

	config, err := mesh.LoadConfig(configPath)
	if err != nil {
		if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) || a.MqttMode {
			return fmt.Errorf("loading config: %w", err)
		}
		log.Printf("No config at %s, using defaults", configPath)
		config = &mesh.Config{}
	} else {
		log.Printf("Loaded config from %s", configPath)
	}

	mesh.ApplyParamOverrides(config, a.Threshold, a.MinAngle, a.MaxPeaks)
	if a.Workers != 0 {
		config.Peaks.Workers = a.Workers
	}
	if err := config.Validate(); err != nil {
		return err
	}
	a.Config = config

	spheres, err := mesh.LoadSpheres(config, filepath.Dir(configPath))
	if err != nil {
		return err
	}
	if a.SphereFile != "" {
		name, s, err := mesh.LoadSphere(a.SphereFile)
		if err != nil {
			return fmt.Errorf("loading sphere: %w", err)
		}
		spheres[name] = s
	}
	if len(spheres) == 0 {
		return errors.New("no spheres loaded: add spheres to the config or pass --sphere")
	}

	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector())
	}
	a.Metrics = mesh.NewMetrics(a.Registry)
	a.Processor = mesh.NewProcessorFromConfig(config, spheres, a.Metrics)

	log.Printf("[PEAKS] spheres: %s, params: %+v", strings.Join(a.Processor.SphereNames(), ", "), a.Processor.Params())
	return nil
}

// findFiles lists files in data-dir with the given suffix, sorted
func (a *App) findFiles(suffix string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(a.DataDir, "*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("finding %s files: %w", suffix, err)
	}
	sort.Strings(files)
	return files, nil
}

// sourceName derives a source ID from a sample file name
func sourceName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), sampleSuffix)
}

// extractFile computes the reports for one sample or batch file
func (a *App) extractFile(ctx context.Context, path string) ([]*mesh.PeakReport, error) {
	name := sourceName(path)

	batch, err := mesh.ParseBatchFile(path)
	if err != nil {
		return nil, err
	}
	if len(batch.Samples) > 0 {
		return a.Processor.ProcessBatch(ctx, name, batch, a.Config.Peaks.Workers)
	}

	sample, err := mesh.ParseSampleFile(path)
	if err != nil {
		return nil, err
	}
	if sample.Source != "" {
		name = sample.Source
	}
	report, err := a.Processor.Process(name, sample)
	if err != nil {
		return nil, err
	}
	return []*mesh.PeakReport{report}, nil
}

// RunExtract computes peaks for every *.odf.json file in data-dir and
// writes a *.peaks.json file next to each
func (a *App) RunExtract() error {
	if err := a.setup(); err != nil {
		return err
	}

	files, err := a.findFiles(sampleSuffix)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no *%s files found in %s", sampleSuffix, a.DataDir)
	}

	fmt.Fprintf(a.Out, "Found %d sample file(s)\n\n", len(files))

	ctx := context.Background()
	failed := 0
	for _, file := range files {
		fmt.Fprintf(a.Out, "=== %s ===\n", sourceName(file))

		reports, err := a.extractFile(ctx, file)
		if err != nil {
			fmt.Fprintf(a.Out, "ERROR: %v\n\n", err)
			failed++
			continue
		}

		out := strings.TrimSuffix(file, sampleSuffix) + reportSuffix
		if err := mesh.WriteReports(out, reports); err != nil {
			fmt.Fprintf(a.Out, "ERROR: %v\n\n", err)
			failed++
			continue
		}

		if len(reports) == 1 {
			printSummary(a.Out, mesh.Summarize(reports[0]))
		} else {
			printBatchSummary(a.Out, reports)
		}
		fmt.Fprintf(a.Out, "Wrote %s\n\n", out)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
	}
	return nil
}

func printSummary(w io.Writer, s mesh.PeakSummary) {
	fmt.Fprintf(w, "Sphere: %s\n", s.Sphere)
	fmt.Fprintf(w, "Peaks: %d (max value %.4f)\n", s.Count, s.MaxValue)
	for i, p := range s.Peaks {
		fmt.Fprintf(w, "  #%d vertex %d value %.4f theta %.1f° phi %.1f°\n", i, p.Index, p.Value, p.Theta, p.Phi)
	}
}

func printBatchSummary(w io.Writer, reports []*mesh.PeakReport) {
	total, empty := 0, 0
	for _, r := range reports {
		total += r.Len()
		if r.Len() == 0 {
			empty++
		}
	}
	fmt.Fprintf(w, "Voxels: %d\n", len(reports))
	fmt.Fprintf(w, "Peaks: %d total, %.2f per voxel, %d voxel(s) without peaks\n",
		total, float64(total)/float64(len(reports)), empty)
}

// loadReports reads *.peaks.json reports from data-dir. When there are none,
// *.odf.json samples are extracted in memory instead.
func (a *App) loadReports() ([]*mesh.PeakReport, error) {
	files, err := a.findFiles(reportSuffix)
	if err != nil {
		return nil, err
	}

	var reports []*mesh.PeakReport
	for _, file := range files {
		rs, err := mesh.LoadReports(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", file, err)
			continue
		}
		reports = append(reports, rs...)
	}
	if len(reports) > 0 {
		return reports, nil
	}

	if err := a.setup(); err != nil {
		return nil, err
	}
	samples, err := a.findFiles(sampleSuffix)
	if err != nil {
		return nil, err
	}
	for _, file := range samples {
		rs, err := a.extractFile(context.Background(), file)
		if err != nil {
			log.Printf("Warning: Failed to extract %s: %v", file, err)
			continue
		}
		reports = append(reports, rs...)
	}
	return reports, nil
}

// RunRender draws the reports found in data-dir into a single image
func (a *App) RunRender() error {
	reports, err := a.loadReports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("no peak reports or samples found in %s", a.DataDir)
	}

	format := a.RenderFormat
	if format == "" {
		format = "png"
	}
	output := a.OutputFile
	if output == "" {
		output = "peaks." + outputExtension(format)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := a.writeImage(f, format, reports); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Rendered %d report(s) to %s\n", len(reports), output)
	return nil
}

func outputExtension(format string) string {
	switch format {
	case "svg":
		return "svg"
	case "geojson":
		return "geojson"
	default:
		return "png"
	}
}

// writeImage renders reports in the given format
func (a *App) writeImage(w io.Writer, format string, reports []*mesh.PeakReport) error {
	return renderReports(w, format, reports, a.Config)
}

// handleSample processes one received sample and publishes the report
func (a *App) handleSample(sourceID string, _ []byte, sample *mesh.OdfSample, err error) {
	if err != nil {
		log.Printf("[MQTT] Error receiving sample for %s: %v", sourceID, err)
		return
	}

	report, err := a.Processor.Process(sourceID, sample)
	if err != nil {
		log.Printf("[PEAKS] %s: %v", sourceID, err)
		return
	}
	a.StateTracker.UpdateReport(report)
	log.Printf("[PEAKS] %s: %d peak(s) on %s", sourceID, report.Len(), report.Sphere)

	if a.Publisher != nil {
		if err := a.Publisher.PublishReport(report); err != nil {
			log.Printf("[MQTT] Error publishing report for %s: %v", sourceID, err)
		}
	}
}

// pollSource fetches a source's sample from its API URL until ctx is done
func (a *App) pollSource(ctx context.Context, src mesh.SourceConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sample, err := mesh.FetchSample(ctx, *src.ApiURL)
		if ctx.Err() != nil {
			return
		}
		a.handleSample(src.ID, nil, sample, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting odfpeaks service...")

	if err := a.setup(); err != nil {
		return err
	}

	cachePath := a.resolvePath(a.ReportCache, ".peaks-cache.json")
	a.StateTracker = mesh.NewStateTrackerWithCache(cachePath)
	for _, src := range a.Config.Sources {
		if src.Color != "" {
			a.StateTracker.SetColor(src.ID, src.Color)
		}
	}
	if a.StateTracker.HasReports() {
		log.Printf("Loaded %d cached report(s) from %s", len(a.StateTracker.GetReports()), cachePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		client, err := mesh.InitMQTT(a.Config, a.handleSample)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return errors.New("MQTT broker not configured in config.yaml")
		}
		client.SetParamsHandler(func(p peaks.Params) {
			if err := a.Processor.SetParams(p); err != nil {
				log.Printf("[MQTT] Rejected params update: %v", err)
				return
			}
			log.Printf("[MQTT] Peak parameters updated: %+v", p)
		})
		client.SetParamsSource(a.Processor.Params)
		a.MQTTClient = client
		a.Publisher = mesh.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
		fmt.Fprintln(a.Out, "MQTT report publisher initialized")
	}

	for _, src := range a.Config.Sources {
		if src.ApiURL != nil && *src.ApiURL != "" {
			log.Printf("Polling %s from %s every %s", src.ID, *src.ApiURL, samplePollInterval)
			go a.pollSource(ctx, src, samplePollInterval)
		}
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.HttpPort),
			Handler:           newHTTPServer(a.StateTracker, a.Processor, a.Config, a.Registry, a.publishReport),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			fmt.Fprintf(a.Out, "HTTP server starting on %s\n", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	a.printServiceInfo()

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// publishReport stores a report computed over HTTP and publishes it when MQTT is up
func (a *App) publishReport(r *mesh.PeakReport) {
	a.StateTracker.UpdateReport(r)
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishReport(r); err != nil {
		log.Printf("[MQTT] Error publishing report for %s: %v", r.Source, err)
	}
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.MqttMode && a.Publisher != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintln(a.Out, "  Subscribed topics:")
		for _, src := range a.Config.Sources {
			fmt.Fprintf(a.Out, "    - %s (%s)\n", src.Topic, src.ID)
		}
		prefix := a.Publisher.Prefix()
		fmt.Fprintf(a.Out, "  Parameter updates: %s\n", mesh.ParamsControlTopic(prefix))
		fmt.Fprintf(a.Out, "  Publishing to: %s/{sourceID}\n", prefix)
		fmt.Fprintf(a.Out, "  Combined reports: %s/peaks\n", prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET  /health               - Health check")
		fmt.Fprintln(a.Out, "  GET  /peaks                - Latest reports")
		fmt.Fprintln(a.Out, "  POST /peaks                - Compute peaks for a sample")
		fmt.Fprintln(a.Out, "  GET  /peaks/{id}.png|.svg|.geojson")
		fmt.Fprintln(a.Out, "  GET|PUT /params            - Peak parameters")
		fmt.Fprintln(a.Out, "  GET  /metrics              - Prometheus metrics")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
