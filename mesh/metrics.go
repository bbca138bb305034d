package mesh

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kwv/odfpeaks/peaks"
)

// Metrics collects peak extraction statistics for the /metrics endpoint
type Metrics struct {
	Samples   *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	PeakCount prometheus.Histogram
	Latency   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odfpeaks_samples_total",
			Help: "ODF samples processed, by source and outcome",
		}, []string{"source", "outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odfpeaks_errors_total",
			Help: "Failed samples by error kind",
		}, []string{"kind"}),
		PeakCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "odfpeaks_peaks_per_sample",
			Help:    "Number of peaks found per sample",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 13},
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "odfpeaks_extract_seconds",
			Help:    "Time spent extracting peaks from one sample",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Samples, m.Errors, m.PeakCount, m.Latency)
	}
	return m
}

// ErrorKind classifies an extraction error for metric labels
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, peaks.ErrEdgeOutOfRange):
		return "edge_range"
	case errors.Is(err, peaks.ErrNaN):
		return "nan"
	case errors.Is(err, peaks.ErrShapeMismatch):
		return "shape"
	case errors.Is(err, ErrUnknownSphere):
		return "sphere"
	case errors.Is(err, ErrSampleLength):
		return "length"
	default:
		return "other"
	}
}

func (m *Metrics) observe(source string, peakCount int, seconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Samples.WithLabelValues(source, "error").Inc()
		m.Errors.WithLabelValues(ErrorKind(err)).Inc()
		return
	}
	m.Samples.WithLabelValues(source, "ok").Inc()
	m.PeakCount.Observe(float64(peakCount))
	m.Latency.Observe(seconds)
}
