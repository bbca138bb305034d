package mesh

import (
	"time"

	"github.com/kwv/odfpeaks/peaks"
)

// SphereFile is the on-disk description of a spherical mesh
type SphereFile struct {
	Name     string      `json:"name" yaml:"name"`
	Vertices [][]float64 `json:"vertices" yaml:"vertices"`
	Edges    [][2]int    `json:"edges" yaml:"edges"`
}

// OdfSample is one ODF evaluated on the vertices of a named sphere
type OdfSample struct {
	Source    string    `json:"source,omitempty"`
	Sphere    string    `json:"sphere,omitempty"`
	Values    []float64 `json:"values"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// OdfBatch holds many ODFs sampled on the same sphere, one per voxel
type OdfBatch struct {
	Sphere  string      `json:"sphere,omitempty"`
	Samples [][]float64 `json:"samples"`
}

// PeakReport is the serialized peak result for one sample
type PeakReport struct {
	Source     string       `json:"source"`
	Sphere     string       `json:"sphere"`
	Directions [][3]float64 `json:"directions"`
	Values     []float64    `json:"values"`
	Indices    []int        `json:"indices"`
	Timestamp  int64        `json:"timestamp"`
}

// NewPeakReport converts a peak result into its serialized form
func NewPeakReport(source, sphere string, res peaks.Result) *PeakReport {
	dirs := make([][3]float64, len(res.Directions))
	for i, d := range res.Directions {
		dirs[i] = [3]float64{d.X, d.Y, d.Z}
	}
	values := make([]float64, len(res.Values))
	copy(values, res.Values)
	indices := make([]int, len(res.Indices))
	copy(indices, res.Indices)

	return &PeakReport{
		Source:     source,
		Sphere:     sphere,
		Directions: dirs,
		Values:     values,
		Indices:    indices,
		Timestamp:  time.Now().Unix(),
	}
}

// Len returns the number of peaks in the report
func (r *PeakReport) Len() int {
	return len(r.Indices)
}

// MaxValue returns the largest peak value, or 0 for an empty report
func (r *PeakReport) MaxValue() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	return r.Values[0]
}

// SphereConfig names a sphere file to load at startup
type SphereConfig struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// SourceConfig defines an ODF source from config file
type SourceConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic" json:"topic"`
	Sphere string  `yaml:"sphere,omitempty" json:"sphere,omitempty"`
	Color  string  `yaml:"color,omitempty" json:"color,omitempty"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional URL serving the current sample
}

// PeakConfig holds the peak extraction parameters. Pointers distinguish
// "not set" from an explicit zero.
type PeakConfig struct {
	RelativePeakThreshold *float64 `yaml:"relativePeakThreshold,omitempty" json:"relativePeakThreshold,omitempty"`
	MinSeparationAngle    *float64 `yaml:"minSeparationAngle,omitempty" json:"minSeparationAngle,omitempty"`
	MaxPeaks              int      `yaml:"maxPeaks,omitempty" json:"maxPeaks,omitempty"`
	Workers               int      `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// RenderConfig holds rendering defaults
type RenderConfig struct {
	Size       int     `yaml:"size,omitempty" json:"size,omitempty"`             // Raster image size in pixels (default 512)
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // Vector PNG DPI (default 96)
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Peaks   PeakConfig     `yaml:"peaks" json:"peaks"`
	Spheres []SphereConfig `yaml:"spheres" json:"spheres"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
	Render  RenderConfig   `yaml:"render,omitempty" json:"render,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

// Params returns the peak parameters with defaults filled in
func (c *Config) Params() peaks.Params {
	p := peaks.DefaultParams()
	if c.Peaks.RelativePeakThreshold != nil {
		p.RelativePeakThreshold = *c.Peaks.RelativePeakThreshold
	}
	if c.Peaks.MinSeparationAngle != nil {
		p.MinSeparationAngle = *c.Peaks.MinSeparationAngle
	}
	p.MaxPeaks = c.Peaks.MaxPeaks
	return p
}
