package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Worker modes.
const (
	WorkerModeInProcess = "inprocess"
	WorkerModeProcess   = "process"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Config represents a buildout.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	BuildDir string         `yaml:"build_dir"`
	Scope    string         `yaml:"scope"`
	Project  string         `yaml:"project"`
	Manifest ManifestConfig `yaml:"manifest"`
	Workers  WorkersConfig  `yaml:"workers"`
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// ManifestConfig holds manifest loading defaults.
type ManifestConfig struct {
	// Strict makes unreadable manifests an error instead of empty.
	Strict bool `yaml:"strict"`
	// CacheSize bounds the decoded-manifest cache (0 uses the default).
	CacheSize int `yaml:"cache_size"`
}

// WorkersConfig holds worker pool defaults.
type WorkersConfig struct {
	// Mode is "inprocess" (default) or "process".
	Mode     string `yaml:"mode"`
	Parallel int    `yaml:"parallel"`
	// Executable is the binary launched in process mode; empty means the
	// running binary.
	Executable string `yaml:"executable"`
}

// StorageConfig holds manifest store defaults.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds publication adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks value ranges and enumerations. Empty values are valid;
// they fall back to flag defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.Scope != "" && (strings.ContainsAny(c.Scope, `/\`) || c.Scope == "." || c.Scope == "..") {
		errs = append(errs, fmt.Errorf("scope %q must be a single path segment", c.Scope))
	}
	if c.Manifest.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("manifest.cache_size must be >= 0, got %d", c.Manifest.CacheSize))
	}

	switch c.Workers.Mode {
	case "", WorkerModeInProcess, WorkerModeProcess:
	default:
		errs = append(errs, fmt.Errorf("workers.mode must be %q or %q, got %q",
			WorkerModeInProcess, WorkerModeProcess, c.Workers.Mode))
	}
	if c.Workers.Parallel < 0 {
		errs = append(errs, fmt.Errorf("workers.parallel must be >= 0, got %d", c.Workers.Parallel))
	}

	switch c.Storage.Backend {
	case "", "fs", "memory", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs, memory or s3, got %q", c.Storage.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be %q or %q, got %q",
			AdapterWebhook, AdapterRedis, c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	return errors.Join(errs...)
}

// resolvePaths makes relative directories relative to the config file.
func (c *Config) resolvePaths(configDir string) {
	if c.BuildDir != "" && !filepath.IsAbs(c.BuildDir) {
		c.BuildDir = filepath.Join(configDir, c.BuildDir)
	}
	if (c.Storage.Backend == "" || c.Storage.Backend == "fs") && c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(configDir, c.Storage.Path)
	}
}
