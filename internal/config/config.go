package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davesproson/gribgrab/internal/nomads"
)

// cycleLayout is the YYYYMMDDHH cycle encoding used in config values.
const cycleLayout = "2006010215"

// Config defines configuration for the gribgrab CLI.
type Config struct {
	// Cycle is the forecast reference time. Required.
	Cycle time.Time `yaml:"-"`

	// Horizon is the maximum lead time in hours, inclusive. -1 means
	// unbounded.
	Horizon int `yaml:"horizon"`

	// Resolution is the spatial grid spacing in degrees.
	Resolution nomads.Resolution `yaml:"-"`

	// MinStep keeps only steps evenly divisible by it. 0 disables the
	// filter.
	MinStep int `yaml:"min_step"`

	// Patterns are the subset patterns, applied in order.
	Patterns []string `yaml:"patterns"`

	// MergeFile appends every step to a single output file.
	MergeFile string `yaml:"merge_file"`

	// FileTemplate names each step's output from a strftime template
	// with a {step} token. Mutually exclusive with MergeFile.
	FileTemplate string `yaml:"file_template"`

	// Destination is where output is written: a local directory, or a
	// bucket URL such as s3://bucket/prefix.
	Destination string `yaml:"destination"`

	// Workers is the number of steps fetched in parallel. Values above
	// 1 require FileTemplate.
	Workers int `yaml:"workers"`

	// Progress enables the progress reporter.
	Progress bool `yaml:"progress"`

	// Server and BasePath override the archive endpoint.
	Server   string `yaml:"server"`
	BasePath string `yaml:"base_path"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior for archive requests.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	ep := nomads.DefaultEndpoint()
	return Config{
		Horizon:     168,
		Resolution:  nomads.Res0p50,
		Destination: ".",
		Workers:     1,
		Server:      ep.Server,
		BasePath:    ep.BasePath,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// Endpoint returns the configured archive endpoint.
func (c *Config) Endpoint() nomads.Endpoint {
	return nomads.Endpoint{Server: c.Server, BasePath: c.BasePath}
}

// yamlConfig is used for YAML unmarshaling with string-typed fields for
// values that need parsing.
type yamlConfig struct {
	Cycle        string          `yaml:"cycle"`
	Horizon      *int            `yaml:"horizon"`
	Resolution   float64         `yaml:"resolution"`
	MinStep      int             `yaml:"min_step"`
	Patterns     []string        `yaml:"patterns"`
	MergeFile    string          `yaml:"merge_file"`
	FileTemplate string          `yaml:"file_template"`
	Destination  string          `yaml:"destination"`
	Workers      int             `yaml:"workers"`
	Progress     bool            `yaml:"progress"`
	Server       string          `yaml:"server"`
	BasePath     string          `yaml:"base_path"`
	Retry        yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// ParseCycle parses a cycle reference time in YYYYMMDDHH form.
func ParseCycle(s string) (time.Time, error) {
	t, err := time.Parse(cycleLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cycle %q (want YYYYMMDDHH): %w", s, err)
	}
	return t, nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Cycle != "" {
		cycle, err := ParseCycle(yc.Cycle)
		if err != nil {
			return Config{}, fmt.Errorf("parse cycle: %w", err)
		}
		cfg.Cycle = cycle
	}
	if yc.Horizon != nil {
		cfg.Horizon = *yc.Horizon
	}
	if yc.Resolution != 0 {
		cfg.Resolution = nomads.Resolution(yc.Resolution)
	}
	if yc.MinStep != 0 {
		cfg.MinStep = yc.MinStep
	}
	if len(yc.Patterns) > 0 {
		cfg.Patterns = yc.Patterns
	}
	cfg.MergeFile = yc.MergeFile
	cfg.FileTemplate = yc.FileTemplate
	if yc.Destination != "" {
		cfg.Destination = yc.Destination
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.Progress = yc.Progress
	if yc.Server != "" {
		cfg.Server = yc.Server
	}
	if yc.BasePath != "" {
		cfg.BasePath = yc.BasePath
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GRIBGRAB_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GRIBGRAB_CYCLE"); v != "" {
		cycle, err := ParseCycle(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_CYCLE: %w", err)
		}
		c.Cycle = cycle
	}
	if v := os.Getenv("GRIBGRAB_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_HORIZON: %w", err)
		}
		c.Horizon = n
	}
	if v := os.Getenv("GRIBGRAB_RESOLUTION"); v != "" {
		res, err := nomads.ParseResolution(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_RESOLUTION: %w", err)
		}
		c.Resolution = res
	}
	if v := os.Getenv("GRIBGRAB_MIN_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_MIN_STEP: %w", err)
		}
		c.MinStep = n
	}
	if v := os.Getenv("GRIBGRAB_PATTERNS"); v != "" {
		c.Patterns = strings.Split(v, ",")
	}
	if v := os.Getenv("GRIBGRAB_MERGE_FILE"); v != "" {
		c.MergeFile = v
	}
	if v := os.Getenv("GRIBGRAB_FILE_TEMPLATE"); v != "" {
		c.FileTemplate = v
	}
	if v := os.Getenv("GRIBGRAB_DESTINATION"); v != "" {
		c.Destination = v
	}
	if v := os.Getenv("GRIBGRAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("GRIBGRAB_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("GRIBGRAB_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("GRIBGRAB_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("GRIBGRAB_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("GRIBGRAB_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("GRIBGRAB_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GRIBGRAB_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration. No network activity happens
// before this passes.
func (c *Config) Validate() error {
	if c.Cycle.IsZero() {
		return errors.New("config: cycle is required")
	}
	if !c.Resolution.Valid() {
		return fmt.Errorf("config: unsupported resolution %s", c.Resolution)
	}
	if c.Horizon < -1 {
		return errors.New("config: horizon must be >= 0, or -1 for unbounded")
	}
	if c.MinStep < 0 {
		return errors.New("config: min_step must not be negative")
	}
	if c.MergeFile != "" && c.FileTemplate != "" {
		return errors.New("config: only one of merge_file and file_template may be set")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.Workers > 1 && c.FileTemplate == "" {
		return errors.New("config: workers > 1 requires file_template")
	}
	if c.Destination == "" {
		return errors.New("config: destination is required")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if !override.Cycle.IsZero() {
		c.Cycle = override.Cycle
	}
	if override.Horizon != 0 {
		c.Horizon = override.Horizon
	}
	if override.Resolution != 0 {
		c.Resolution = override.Resolution
	}
	if override.MinStep != 0 {
		c.MinStep = override.MinStep
	}
	if len(override.Patterns) > 0 {
		c.Patterns = append(c.Patterns, override.Patterns...)
	}
	if override.MergeFile != "" {
		c.MergeFile = override.MergeFile
	}
	if override.FileTemplate != "" {
		c.FileTemplate = override.FileTemplate
	}
	if override.Destination != "" {
		c.Destination = override.Destination
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Server != "" {
		c.Server = override.Server
	}
	if override.BasePath != "" {
		c.BasePath = override.BasePath
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
