package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tdewolff/canvas"

	"github.com/kwv/odfpeaks/mesh"
	"github.com/kwv/odfpeaks/peaks"
)

// maxSampleBody limits POST /peaks request bodies to 16 MB
const maxSampleBody = 16 << 20

// newHTTPServer creates an HTTP server with all endpoints.
// onReport receives every report computed through POST /peaks.
func newHTTPServer(stateTracker *mesh.StateTracker, processor *mesh.Processor, config *mesh.Config,
	gatherer prometheus.Gatherer, onReport func(*mesh.PeakReport)) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasReports bool      `json:"hasReports"`
			Spheres    []string  `json:"spheres"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasReports: stateTracker.HasReports(),
			Spheres:    processor.SphereNames(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Latest report of every source
	mux.HandleFunc("GET /peaks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := writeJSON(w, stateTracker.GetReports()); err != nil {
			log.Printf("Error encoding reports: %v", err)
		}
	})

	// Compute peaks for a posted sample
	mux.HandleFunc("POST /peaks", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBody+1))
		if err != nil {
			http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxSampleBody {
			http.Error(w, "sample too large", http.StatusRequestEntityTooLarge)
			return
		}

		sample, err := mesh.DecodeSample(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		q := r.URL.Query()
		source := q.Get("source")
		if source == "" {
			source = sample.Source
		}
		if source == "" {
			source = "http"
		}
		if sphere := q.Get("sphere"); sphere != "" {
			sample.Sphere = sphere
		}

		params, err := paramsFromQuery(q.Get, processor.Params())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := processor.ProcessWithParams(source, sample, params)
		if err != nil {
			log.Printf("[HTTP] POST /peaks from %s: %v", source, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if onReport != nil {
			onReport(report)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, report); err != nil {
			log.Printf("Error encoding report: %v", err)
		}
	})

	// Combined images of all sources
	for _, format := range []string{"png", "svg", "geojson"} {
		mux.HandleFunc("GET /peaks."+format, func(w http.ResponseWriter, r *http.Request) {
			reports := stateTracker.GetReports()
			if len(reports) == 0 {
				http.Error(w, "No reports available", http.StatusServiceUnavailable)
				return
			}
			serveRendered(w, format, reports, config)
		})
	}

	// Single source: /peaks/{id}, /peaks/{id}.png, .svg or .geojson
	mux.HandleFunc("GET /peaks/{file}", func(w http.ResponseWriter, r *http.Request) {
		id, format := splitFormat(r.PathValue("file"))
		report, ok := stateTracker.GetReport(id)
		if !ok {
			http.Error(w, fmt.Sprintf("No report for %s", id), http.StatusNotFound)
			return
		}
		if format == "json" {
			w.Header().Set("Content-Type", "application/json")
			if err := writeJSON(w, report); err != nil {
				log.Printf("Error encoding report: %v", err)
			}
			return
		}
		serveRendered(w, format, []*mesh.PeakReport{report}, config)
	})

	mux.HandleFunc("GET /params", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, processor.Params()); err != nil {
			log.Printf("Error encoding params: %v", err)
		}
	})

	mux.HandleFunc("PUT /params", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
			return
		}
		params, err := mesh.ParseParamsPayload(body, processor.Params())
		if err == nil {
			err = processor.SetParams(params)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("[HTTP] Peak parameters updated: %+v", params)
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, params); err != nil {
			log.Printf("Error encoding params: %v", err)
		}
	})

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// splitFormat splits "scanner1.png" into ("scanner1", "png"). Names without
// a known extension are served as JSON.
func splitFormat(file string) (string, string) {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return file, "json"
	}
	switch ext := file[i+1:]; ext {
	case "png", "svg", "geojson", "json":
		return file[:i], ext
	}
	return file, "json"
}

// paramsFromQuery overrides base with the threshold, minAngle and maxPeaks
// query values when present
func paramsFromQuery(get func(string) string, base peaks.Params) (peaks.Params, error) {
	p := base
	if v := get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("threshold: %w", err)
		}
		p.RelativePeakThreshold = f
	}
	if v := get("minAngle"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("minAngle: %w", err)
		}
		p.MinSeparationAngle = f
	}
	if v := get("maxPeaks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("maxPeaks: %w", err)
		}
		p.MaxPeaks = n
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

var contentTypes = map[string]string{
	"png":        "image/png",
	"vector-png": "image/png",
	"svg":        "image/svg+xml",
	"geojson":    "application/geo+json",
}

// serveRendered writes reports as an image or GeoJSON document
func serveRendered(w http.ResponseWriter, format string, reports []*mesh.PeakReport, config *mesh.Config) {
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Cache-Control", "no-cache")
	if err := renderReports(w, format, reports, config); err != nil {
		log.Printf("[HTTP] Error rendering %s: %v", format, err)
	}
}

var errUnknownFormat = errors.New("unknown render format")

// renderReports renders reports as png, svg, vector-png or geojson
func renderReports(w io.Writer, format string, reports []*mesh.PeakReport, config *mesh.Config) error {
	switch format {
	case "png":
		r := mesh.NewPeakRenderer(renderSize(config))
		applyConfigColors(r.Colors, config)
		return r.EncodePNG(w, reports)
	case "svg", "vector-png":
		r := mesh.NewVectorRenderer()
		if config != nil && config.Render.Resolution > 0 {
			r.Resolution = canvas.DPI(config.Render.Resolution)
		}
		applyConfigColors(r.Colors, config)
		if format == "svg" {
			return r.RenderToSVG(w, reports)
		}
		return r.RenderToPNG(w, reports)
	case "geojson":
		return writeJSON(w, mesh.ReportsToFeatureCollection(reports, true))
	default:
		return fmt.Errorf("%w %q", errUnknownFormat, format)
	}
}

func renderSize(config *mesh.Config) int {
	if config != nil && config.Render.Size > 0 {
		return config.Render.Size
	}
	return mesh.DefaultRenderSize
}

// applyConfigColors copies source colors from config into a renderer's color map
func applyConfigColors(colors map[string]colorful.Color, config *mesh.Config) {
	if config == nil || colors == nil {
		return
	}
	for _, src := range config.Sources {
		if src.Color == "" {
			continue
		}
		c, err := colorful.Hex(src.Color)
		if err != nil {
			log.Printf("Warning: invalid color %q for %s: %v", src.Color, src.ID, err)
			continue
		}
		colors[src.ID] = c
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
