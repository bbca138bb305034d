package mesh

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kwv/odfpeaks/peaks"
)

// ParseSphereFile reads a sphere description. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func ParseSphereFile(path string) (*SphereFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var sf *SphereFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		sf, err = ParseSphereYAML(data)
	default:
		sf, err = ParseSphereJSON(data)
	}
	if err != nil {
		return nil, err
	}

	if sf.Name == "" {
		sf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sf, nil
}

// ParseSphereJSON parses sphere JSON data
func ParseSphereJSON(data []byte) (*SphereFile, error) {
	var sf SphereFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &sf, nil
}

// ParseSphereYAML parses sphere YAML data
func ParseSphereYAML(data []byte) (*SphereFile, error) {
	var sf SphereFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &sf, nil
}

// Build validates the description and returns the sphere
func (sf *SphereFile) Build() (*peaks.Sphere, error) {
	if len(sf.Vertices) == 0 {
		return nil, fmt.Errorf("sphere %q has no vertices", sf.Name)
	}
	s, err := peaks.NewSphere(sf.Vertices, sf.Edges)
	if err != nil {
		return nil, fmt.Errorf("sphere %q: %w", sf.Name, err)
	}
	return s, nil
}

// LoadSphere reads and builds a sphere, returning it with its name
func LoadSphere(path string) (string, *peaks.Sphere, error) {
	sf, err := ParseSphereFile(path)
	if err != nil {
		return "", nil, err
	}
	s, err := sf.Build()
	if err != nil {
		return "", nil, err
	}
	return sf.Name, s, nil
}

// ParseSampleFile reads and parses an ODF sample JSON file
func ParseSampleFile(path string) (*OdfSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseSampleJSON(data)
}

// ParseSampleJSON parses ODF sample JSON data
func ParseSampleJSON(data []byte) (*OdfSample, error) {
	var s OdfSample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(s.Values) == 0 {
		return nil, fmt.Errorf("sample has no values")
	}
	return &s, nil
}

// ParseBatchFile reads a file holding many ODFs on one sphere
func ParseBatchFile(path string) (*OdfBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var b OdfBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &b, nil
}

// WriteReports writes peak reports as indented JSON
func WriteReports(path string, reports []*PeakReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	return nil
}

// PeakSummary describes a report for console output
type PeakSummary struct {
	Source   string
	Sphere   string
	Count    int
	MaxValue float64
	Peaks    []PeakAngles
}

// PeakAngles locates one peak in spherical coordinates (degrees)
type PeakAngles struct {
	Index int
	Value float64
	Theta float64 // polar angle from +z
	Phi   float64 // azimuth from +x, in [0, 360)
}

// Summarize extracts summary information from a report
func Summarize(r *PeakReport) PeakSummary {
	summary := PeakSummary{
		Source:   r.Source,
		Sphere:   r.Sphere,
		Count:    r.Len(),
		MaxValue: r.MaxValue(),
	}
	for i, d := range r.Directions {
		theta, phi := SphericalAngles(d)
		summary.Peaks = append(summary.Peaks, PeakAngles{
			Index: r.Indices[i],
			Value: r.Values[i],
			Theta: theta,
			Phi:   phi,
		})
	}
	return summary
}
