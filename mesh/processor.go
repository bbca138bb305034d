package mesh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kwv/odfpeaks/peaks"
)

var (
	// ErrUnknownSphere is returned when a sample names a sphere that is not loaded
	ErrUnknownSphere = errors.New("unknown sphere")

	// ErrSampleLength is returned when a sample does not match its sphere
	ErrSampleLength = errors.New("sample length does not match sphere")
)

// Processor runs peak extraction for samples arriving from sources
type Processor struct {
	mu      sync.RWMutex
	spheres map[string]*peaks.Sphere
	sources map[string]string // source ID -> sphere name
	params  peaks.Params
	metrics *Metrics
}

// NewProcessor creates a processor for the given spheres.
// metrics may be nil.
func NewProcessor(spheres map[string]*peaks.Sphere, params peaks.Params, metrics *Metrics) *Processor {
	if spheres == nil {
		spheres = make(map[string]*peaks.Sphere)
	}
	return &Processor{
		spheres: spheres,
		sources: make(map[string]string),
		params:  params,
		metrics: metrics,
	}
}

// NewProcessorFromConfig creates a processor with the config's parameters
// and source to sphere assignments
func NewProcessorFromConfig(config *Config, spheres map[string]*peaks.Sphere, metrics *Metrics) *Processor {
	p := NewProcessor(spheres, config.Params(), metrics)
	for _, src := range config.Sources {
		if src.Sphere != "" {
			p.SetSourceSphere(src.ID, src.Sphere)
		}
	}
	return p
}

// SetSourceSphere assigns a default sphere to a source
func (p *Processor) SetSourceSphere(sourceID, sphere string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[sourceID] = sphere
}

// AddSphere registers a sphere under name
func (p *Processor) AddSphere(name string, s *peaks.Sphere) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spheres[name] = s
}

// SphereNames returns the loaded sphere names, sorted
func (p *Processor) SphereNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.spheres))
	for name := range p.spheres {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params returns the default extraction parameters
func (p *Processor) Params() peaks.Params {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// SetParams replaces the default extraction parameters
func (p *Processor) SetParams(params peaks.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
	return nil
}

// ResolveSphere picks the sphere for a sample.
// Priority: the sample's own sphere name > the source's configured sphere >
// the only loaded sphere.
func (p *Processor) ResolveSphere(sourceID string, sample *OdfSample) (string, *peaks.Sphere, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	name := sample.Sphere
	if name == "" {
		name = p.sources[sourceID]
	}
	if name == "" && len(p.spheres) == 1 {
		for n := range p.spheres {
			name = n
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: sample from %s names no sphere", ErrUnknownSphere, sourceID)
	}

	s, ok := p.spheres[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownSphere, name)
	}
	return name, s, nil
}

// Process extracts the peaks of one sample with the default parameters
func (p *Processor) Process(sourceID string, sample *OdfSample) (*PeakReport, error) {
	return p.ProcessWithParams(sourceID, sample, p.Params())
}

// ProcessWithParams extracts the peaks of one sample
func (p *Processor) ProcessWithParams(sourceID string, sample *OdfSample, params peaks.Params) (*PeakReport, error) {
	start := time.Now()
	report, err := p.process(sourceID, sample, params)
	count := 0
	if report != nil {
		count = report.Len()
	}
	p.metrics.observe(sourceID, count, time.Since(start).Seconds(), err)
	return report, err
}

func (p *Processor) process(sourceID string, sample *OdfSample, params peaks.Params) (*PeakReport, error) {
	name, sphere, err := p.ResolveSphere(sourceID, sample)
	if err != nil {
		return nil, err
	}
	if len(sample.Values) != len(sphere.Vertices) {
		return nil, fmt.Errorf("%w: %d values, sphere %s has %d vertices",
			ErrSampleLength, len(sample.Values), name, len(sphere.Vertices))
	}

	res, err := peaks.PeakDirections(sample.Values, sphere, params)
	if err != nil {
		return nil, fmt.Errorf("extracting peaks for %s: %w", sourceID, err)
	}

	report := NewPeakReport(sourceID, name, res)
	if sample.Timestamp != 0 {
		report.Timestamp = sample.Timestamp
	}
	return report, nil
}

// ProcessBatch extracts the peaks of every voxel in a batch. Reports are
// named "<prefix>/<voxel>".
func (p *Processor) ProcessBatch(ctx context.Context, prefix string, batch *OdfBatch, workers int) ([]*PeakReport, error) {
	name, sphere, err := p.ResolveSphere(prefix, &OdfSample{Sphere: batch.Sphere})
	if err != nil {
		return nil, err
	}
	for i, odf := range batch.Samples {
		if len(odf) != len(sphere.Vertices) {
			return nil, fmt.Errorf("%w: voxel %d has %d values, sphere %s has %d vertices",
				ErrSampleLength, i, len(odf), name, len(sphere.Vertices))
		}
	}

	start := time.Now()
	results, err := peaks.ExtractAll(ctx, batch.Samples, sphere, p.Params(), workers)
	if err != nil {
		p.metrics.observe(prefix, 0, 0, err)
		return nil, err
	}
	perSample := time.Since(start).Seconds() / float64(max(1, len(results)))

	reports := make([]*PeakReport, len(results))
	for i, res := range results {
		reports[i] = NewPeakReport(fmt.Sprintf("%s/%d", prefix, i), name, res)
		p.metrics.observe(prefix, res.Len(), perSample, nil)
	}
	return reports, nil
}
