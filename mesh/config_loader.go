package mesh

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kwv/odfpeaks/peaks"
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and cross references
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" && len(c.Sources) > 0 {
		return fmt.Errorf("mqtt.broker is required when sources are defined")
	}

	spheres := make(map[string]bool, len(c.Spheres))
	for i, sc := range c.Spheres {
		if sc.Name == "" {
			return fmt.Errorf("spheres[%d].name is required", i)
		}
		if sc.Path == "" {
			return fmt.Errorf("spheres[%d].path is required for %s", i, sc.Name)
		}
		if spheres[sc.Name] {
			return fmt.Errorf("sphere %s is defined twice", sc.Name)
		}
		spheres[sc.Name] = true
	}

	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source[%d].id is required", i)
		}
		if src.Topic == "" {
			return fmt.Errorf("source[%d].topic is required for %s", i, src.ID)
		}
		if src.Sphere != "" && !spheres[src.Sphere] {
			return fmt.Errorf("source %s references unknown sphere %s", src.ID, src.Sphere)
		}
	}

	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("peaks: %w", err)
	}
	if c.Peaks.Workers < 0 {
		return fmt.Errorf("peaks.workers must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// LoadSpheres loads every configured sphere. Relative paths are resolved
// against baseDir.
func LoadSpheres(config *Config, baseDir string) (map[string]*peaks.Sphere, error) {
	spheres := make(map[string]*peaks.Sphere, len(config.Spheres))
	for _, sc := range config.Spheres {
		path := sc.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		sf, err := ParseSphereFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading sphere %s: %w", sc.Name, err)
		}
		sf.Name = sc.Name
		s, err := sf.Build()
		if err != nil {
			return nil, err
		}
		spheres[sc.Name] = s
	}
	return spheres, nil
}

// ApplyParamOverrides replaces config peak parameters with CLI values.
// Negative values mean "not given".
func ApplyParamOverrides(config *Config, threshold, minAngle float64, maxPeaks int) {
	if threshold >= 0 {
		config.Peaks.RelativePeakThreshold = &threshold
	}
	if minAngle >= 0 {
		config.Peaks.MinSeparationAngle = &minAngle
	}
	if maxPeaks >= 0 {
		config.Peaks.MaxPeaks = maxPeaks
	}
}
