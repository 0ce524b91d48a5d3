package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowline/flowline/internal/flow"
)

// Config holds the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Cache       CacheConfig       `yaml:"cache"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EngineConfig holds execution defaults; per-request options override them.
type EngineConfig struct {
	Workers        int `yaml:"workers"`          // worker pool size per level (default: 10)
	MaxRetries     int `yaml:"max_retries"`      // invocation attempts per node (default: 3)
	RetryBaseDelay int `yaml:"retry_base_delay"` // seconds; delay = base × attempt (default: 1)
	Timeout        int `yaml:"timeout"`          // per-execution seconds (default: 300)
}

// CacheConfig holds invocation-cache settings.
type CacheConfig struct {
	MaxSize        int      `yaml:"max_size"`        // entries (default: 1000)
	TTL            int      `yaml:"ttl"`             // seconds (default: 300)
	CacheableTypes []string `yaml:"cacheable_types"` // empty: all types cacheable
}

// MaintenanceConfig holds the external maintenance triggers.
type MaintenanceConfig struct {
	CacheSweep string `yaml:"cache_sweep"` // cron spec for expired-entry sweeps
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Engine: EngineConfig{
			Workers:        10,
			MaxRetries:     3,
			RetryBaseDelay: 1,
			Timeout:        300,
		},
		Cache: CacheConfig{
			MaxSize: 1000,
			TTL:     300,
		},
		Maintenance: MaintenanceConfig{
			CacheSweep: "@every 5m",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ExecutionDefaults maps the engine and cache sections onto the baseline
// execution options. Per-request options still override every field.
func (c *Config) ExecutionDefaults() flow.ExecutionOptions {
	opts := flow.DefaultOptions()
	if c.Engine.Workers > 0 {
		opts.Workers = c.Engine.Workers
	}
	if c.Engine.MaxRetries > 0 {
		opts.MaxRetries = c.Engine.MaxRetries
	}
	if c.Engine.RetryBaseDelay > 0 {
		opts.RetryBaseDelay = c.Engine.RetryBaseDelayDuration()
	}
	if c.Engine.Timeout > 0 {
		opts.Timeout = c.Engine.TimeoutDuration()
	}
	if c.Cache.TTL > 0 {
		opts.CacheTTL = c.Cache.TTLDuration()
	}
	opts.CacheableTypes = c.Cache.CacheableTypes
	return opts
}

// RetryBaseDelayDuration returns the configured base delay as a duration.
func (c EngineConfig) RetryBaseDelayDuration() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Second
}

// TimeoutDuration returns the configured execution timeout as a duration.
func (c EngineConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TTLDuration returns the configured cache TTL as a duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
