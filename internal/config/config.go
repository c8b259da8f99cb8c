// Package config loads the YAML application config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/subwatch/subwatch/internal/engine"
)

// Config is the application configuration file format
type Config struct {
	// Currency is the ISO code used when formatting amounts
	Currency string `yaml:"currency,omitempty"`

	// ListenAddr is the address the HTTP server binds to in serve mode
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// DBPath is the SQLite database location used in serve mode
	DBPath string `yaml:"db_path,omitempty"`

	// ReferenceFile optionally overlays the built-in known-service table
	ReferenceFile string `yaml:"reference_file,omitempty"`

	Detection DetectionConfig `yaml:"detection,omitempty"`
}

// DetectionConfig tunes the engine. Zero values fall back to the engine
// defaults.
type DetectionConfig struct {
	MinOccurrences          int      `yaml:"min_occurrences,omitempty"`
	AmountVarianceTolerance float64  `yaml:"amount_variance_tolerance,omitempty"`
	AmountVarianceFixed     float64  `yaml:"amount_variance_fixed,omitempty"`
	MaxVarianceThreshold    *float64 `yaml:"max_variance_threshold,omitempty"`
}

// DefaultConfigPath returns the default config file path (~/.subwatch/config.yaml)
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".subwatch", "config.yaml")
}

// NewDefault returns the configuration used when no file exists.
func NewDefault() *Config {
	return &Config{
		Currency:   "USD",
		ListenAddr: "127.0.0.1:8787",
		DBPath:     defaultDBPath(),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "subwatch.db"
	}
	return filepath.Join(home, ".subwatch", "subwatch.db")
}

// Load reads the config at path, falling back to defaults for any field the
// file leaves unset. A missing file is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	return cfg, nil
}

// EngineOptions maps the detection section onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		MinOccurrences:          c.Detection.MinOccurrences,
		AmountVarianceTolerance: c.Detection.AmountVarianceTolerance,
		AmountVarianceFixed:     c.Detection.AmountVarianceFixed,
		MaxVarianceThreshold:    c.Detection.MaxVarianceThreshold,
	}
}

// Reference builds the engine reference tables, applying the overlay file
// when one is configured.
func (c *Config) Reference() (*engine.Reference, error) {
	if c.ReferenceFile == "" {
		return engine.DefaultReference(), nil
	}
	return engine.LoadReference(c.ReferenceFile)
}
