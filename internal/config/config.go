package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMetricFileName is used when no explicit metrics file is configured.
const DefaultMetricFileName = "canary.json"

// URLEnv is the environment variable consulted when no URL flag is given.
const URLEnv = "LSMTREE_URL"

// ErrMissingURL is returned by Validate when no target server is configured.
var ErrMissingURL = errors.New("set --url or " + URLEnv + " to the LSMTree server (e.g. http://localhost:8000)")

// Config represents configuration data for the canary.
type Config struct {
	URL             string  `yaml:"url"`
	DataDirectory   string  `yaml:"data_directory"`
	MetricFile      string  `yaml:"metric_file"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
	MaxFailures     int     `yaml:"max_failures"`
	Verbose         bool    `yaml:"verbose"`
	MetricsPort     int     `yaml:"metrics_port"`
	Stream          bool    `yaml:"stream"`
	TimeoutSeconds  float64 `yaml:"timeout_seconds"`
}

// DefaultConfig returns the settings used when nothing else is provided.
func DefaultConfig() Config {
	return Config{
		DataDirectory:   ".",
		IntervalSeconds: 10,
		TimeoutSeconds:  30,
	}
}

// Load reads configuration from a yaml file. An empty path or a missing file
// falls back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	defaults := DefaultConfig()
	c.URL = strings.TrimSpace(c.URL)
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = defaults.IntervalSeconds
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if c.DataDirectory == "" {
		c.DataDirectory = defaults.DataDirectory
	}
}

// Validate reports configuration errors that must stop the canary before it
// starts probing.
func (c *Config) Validate() error {
	c.normalize()
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.MaxFailures < 0 {
		return fmt.Errorf("max_failures must be >= 0, got %d", c.MaxFailures)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port %d out of range", c.MetricsPort)
	}
	return nil
}

// Interval is the pause between two probes.
func (c Config) Interval() time.Duration {
	return secondsToDuration(c.IntervalSeconds)
}

// Timeout bounds each HTTP request of a probe.
func (c Config) Timeout() time.Duration {
	return secondsToDuration(c.TimeoutSeconds)
}

// MetricsFilePath resolves where the metrics JSON is written: the explicit
// metric_file if set, otherwise canary.json inside the absolute data directory.
func (c Config) MetricsFilePath() (string, error) {
	if c.MetricFile != "" {
		return c.MetricFile, nil
	}
	dir := c.DataDirectory
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	return filepath.Join(abs, DefaultMetricFileName), nil
}

// MetricsAddr is the listen address of the exporter, or "" when disabled.
func (c Config) MetricsAddr() string {
	if c.MetricsPort <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
