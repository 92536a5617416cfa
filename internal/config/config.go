package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"spectral-distview/internal/models"
	"spectral-distview/internal/normrange"
)

// Config holds all settings of the distribution viewer
type Config struct {
	Log          LogConfig          `toml:"log"`
	Queue        QueueConfig        `toml:"queue"`
	Distribution DistributionConfig `toml:"distribution"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Export       ExportConfig       `toml:"export"`
}

type LogConfig struct {
	Level   string `toml:"level"`   // debug, info, warn, error
	Console bool   `toml:"console"` // human readable output instead of JSON
}

type QueueConfig struct {
	Workers     int `toml:"workers"`      // concurrent tasks across all views
	TaskWorkers int `toml:"task_workers"` // goroutines a single task fans rows out to; 0 = GOMAXPROCS
	EventBuffer int `toml:"event_buffer"` // notifications buffered before publishers block
}

type DistributionConfig struct {
	Bins          int       `toml:"bins"`
	Normalization string    `toml:"normalization"` // observed, theoretical or fixed
	FixedMin      float64   `toml:"fixed_min"`
	FixedMax      float64   `toml:"fixed_max"`
	Illuminant    []float64 `toml:"illuminant"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type ExportConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// ValidationError reports a configuration value outside its domain
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// Default returns a Config with sensible defaults
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Queue: QueueConfig{
			Workers:     4,
			EventBuffer: 64,
		},
		Distribution: DistributionConfig{
			Bins:          64,
			Normalization: "observed",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Export: ExportConfig{
			Width:  1024,
			Height: 512,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults without consulting the environment
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if workers := os.Getenv("DISTVIEW_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return &ValidationError{Field: "DISTVIEW_WORKERS", Value: workers, Message: "not an integer"}
		}
		c.Queue.Workers = n
	}
	return nil
}

// Validate checks every field and returns the first violation
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return &ValidationError{Field: "log.level", Value: c.Log.Level, Message: "unknown level"}
	}
	if c.Queue.Workers < 1 {
		return &ValidationError{Field: "queue.workers", Value: c.Queue.Workers, Message: "must be at least 1"}
	}
	if c.Queue.TaskWorkers < 0 {
		return &ValidationError{Field: "queue.task_workers", Value: c.Queue.TaskWorkers, Message: "must not be negative"}
	}
	if c.Queue.EventBuffer < 1 {
		return &ValidationError{Field: "queue.event_buffer", Value: c.Queue.EventBuffer, Message: "must be at least 1"}
	}
	if c.Distribution.Bins < 1 || c.Distribution.Bins > models.MaxBins {
		return &ValidationError{
			Field:   "distribution.bins",
			Value:   c.Distribution.Bins,
			Message: fmt.Sprintf("must be within [1, %d]", models.MaxBins),
		}
	}
	mode, err := normrange.ParseMode(c.Distribution.Normalization)
	if err != nil {
		return &ValidationError{Field: "distribution.normalization", Value: c.Distribution.Normalization, Message: err.Error()}
	}
	if mode == normrange.Fixed && c.Distribution.FixedMin >= c.Distribution.FixedMax {
		return &ValidationError{
			Field:   "distribution.fixed_min",
			Value:   c.Distribution.FixedMin,
			Message: "must be below fixed_max",
		}
	}
	for i, w := range c.Distribution.Illuminant {
		if w < 0 {
			return &ValidationError{Field: fmt.Sprintf("distribution.illuminant[%d]", i), Value: w, Message: "must not be negative"}
		}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return &ValidationError{Field: "metrics.address", Value: c.Metrics.Address, Message: "required when metrics are enabled"}
	}
	if c.Export.Width < 64 || c.Export.Height < 64 {
		return &ValidationError{Field: "export", Value: fmt.Sprintf("%dx%d", c.Export.Width, c.Export.Height), Message: "chart must be at least 64x64"}
	}
	return nil
}

// NormalizationMode returns the parsed normalization mode
func (c *Config) NormalizationMode() normrange.Mode {
	mode, _ := normrange.ParseMode(c.Distribution.Normalization)
	return mode
}

// FixedRange returns the range used in fixed normalization
func (c *Config) FixedRange() models.Range {
	return models.Range{Min: c.Distribution.FixedMin, Max: c.Distribution.FixedMax}
}

// IsValidationError reports whether err stems from Validate
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
