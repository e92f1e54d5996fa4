// Package config provides configuration loading and management for mdroistats.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"mdroistats/pkg/roistats"
)

// Environment variables that override values from the YAML file
const (
	EnvWinsorLower = "MDROI_WINSOR_LOWER"
	EnvWinsorUpper = "MDROI_WINSOR_UPPER"
	EnvMinVoxels   = "MDROI_MIN_VOXELS"
	EnvMaxCV       = "MDROI_MAX_CV"
	EnvStorePath   = "MDROI_STORE"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds the goroutines used for voxel grouping and for
		// subjects processed concurrently in a batch
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Statistics parameters
	Statistics struct {
		// WinsorLowerPct is the lower clamping percentile (0-100)
		WinsorLowerPct float64 `yaml:"winsorLowerPct"`

		// WinsorUpperPct is the upper clamping percentile (0-100)
		WinsorUpperPct float64 `yaml:"winsorUpperPct"`

		// Scale multiplies metric values before any statistic is taken.
		// 1000 reports MD in units of 10^-3 mm^2/s.
		Scale float64 `yaml:"scale"`
	} `yaml:"statistics"`

	// Quality control thresholds
	Quality struct {
		// MinVoxelCount is the smallest region reported as reliable
		MinVoxelCount int `yaml:"minVoxelCount"`

		// MaxCV is the largest coefficient of variation reported as reliable
		MaxCV float64 `yaml:"maxCV"`

		// RequirePositiveMean excludes regions with a mean of zero or below
		RequirePositiveMean bool `yaml:"requirePositiveMean"`

		// CVBasis is "raw" or "winsorized"
		CVBasis string `yaml:"cvBasis"`
	} `yaml:"quality"`

	// Output parameters
	Output struct {
		// Dir is the directory results are written to
		Dir string `yaml:"dir"`

		// Prefix starts every output filename
		Prefix string `yaml:"prefix"`

		// TopN is the number of regions in the ranking plots
		TopN int `yaml:"topN"`

		// RankBy names the statistic used for rankings and the histogram
		RankBy string `yaml:"rankBy"`

		// HistogramBins is the number of bins of the distribution plot
		HistogramBins int `yaml:"histogramBins"`

		// XLSX additionally writes the table as an Excel workbook
		XLSX bool `yaml:"xlsx"`

		// Plots enables the PNG ranking and histogram plots
		Plots bool `yaml:"plots"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Store parameters
	Store struct {
		// Path is the SQLite database results are recorded in. Empty
		// disables the store.
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default statistics parameters
	cfg.Statistics.WinsorLowerPct = 5
	cfg.Statistics.WinsorUpperPct = 95
	cfg.Statistics.Scale = 1.0

	// Set default quality control parameters
	cfg.Quality.MinVoxelCount = 20
	cfg.Quality.MaxCV = 1.0
	cfg.Quality.RequirePositiveMean = true
	cfg.Quality.CVBasis = string(roistats.CVBasisWinsorized)

	// Set default output parameters
	cfg.Output.Dir = "."
	cfg.Output.Prefix = "md"
	cfg.Output.TopN = 25
	cfg.Output.RankBy = "median"
	cfg.Output.HistogramBins = 40
	cfg.Output.XLSX = false
	cfg.Output.Plots = true
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides configuration values from MDROI_* environment variables
func (c *Config) ApplyEnv() error {
	floatVars := []struct {
		name string
		dst  *float64
	}{
		{EnvWinsorLower, &c.Statistics.WinsorLowerPct},
		{EnvWinsorUpper, &c.Statistics.WinsorUpperPct},
		{EnvMaxCV, &c.Quality.MaxCV},
	}
	for _, v := range floatVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok || raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", v.name, err)
		}
		*v.dst = f
	}

	if raw, ok := os.LookupEnv(EnvMinVoxels); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMinVoxels, err)
		}
		c.Quality.MinVoxelCount = n
	}

	if raw, ok := os.LookupEnv(EnvStorePath); ok {
		c.Store.Path = raw
	}

	return nil
}

// Params converts the statistics and quality sections into engine parameters
func (c *Config) Params() roistats.Params {
	return roistats.Params{
		Winsor: roistats.WinsorBounds{
			LowerPct: c.Statistics.WinsorLowerPct,
			UpperPct: c.Statistics.WinsorUpperPct,
		},
		Quality: roistats.QualityThresholds{
			MinVoxelCount:       c.Quality.MinVoxelCount,
			MaxCV:               c.Quality.MaxCV,
			RequirePositiveMean: c.Quality.RequirePositiveMean,
			CVBasis:             roistats.CVBasis(c.Quality.CVBasis),
		},
		Scale:   c.Statistics.Scale,
		Workers: c.Processing.NumCores,
	}
}

// RankStatistic resolves Output.RankBy
func (c *Config) RankStatistic() (roistats.Statistic, error) {
	return roistats.ParseStatistic(c.Output.RankBy)
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.Statistics.Scale == 0 {
		return fmt.Errorf("statistics.scale must be positive")
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Output.TopN < 1 {
		return fmt.Errorf("output.topN must be at least 1, got %d", c.Output.TopN)
	}
	if c.Output.HistogramBins < 1 {
		return fmt.Errorf("output.histogramBins must be at least 1, got %d", c.Output.HistogramBins)
	}
	if _, err := c.RankStatistic(); err != nil {
		return fmt.Errorf("output.rankBy: %w", err)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
