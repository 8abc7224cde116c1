// Package config loads forge's YAML-backed configuration: resource pool
// sizes, the local cache directory, remote cache settings, retry policy,
// logging, and queue timeouts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"forge/internal/logging"
)

// Config holds all of forge's runtime configuration.
type Config struct {
	// Pools sizes the resource broker's named token pools.
	Pools PoolConfig `yaml:"pools"`

	// Cache configures the local CAS and optional remote.
	Cache CacheConfig `yaml:"cache"`

	// Retry configures job-runtime retry/backoff behaviour.
	Retry RetryConfig `yaml:"retry"`

	// Queues configures per-stage timeouts.
	Queues QueueConfig `yaml:"queues"`

	// Logging configures the structured, category-scoped logger.
	Logging LoggingConfig `yaml:"logging"`
}

// PoolConfig sizes the broker's token pools. Zero means unlimited for a
// pool that's never requested at all, but every pool named in a Request
// must appear here with a positive capacity for Acquire to succeed.
type PoolConfig struct {
	Process int64            `yaml:"process"`
	Network int64            `yaml:"network"`
	Cache   int64            `yaml:"cache"`
	Custom  map[string]int64 `yaml:"custom,omitempty"`
}

// Capacities flattens PoolConfig into the map broker.New expects.
func (p PoolConfig) Capacities() map[string]int64 {
	caps := map[string]int64{
		"process": p.Process,
		"network": p.Network,
		"cache":   p.Cache,
	}
	for name, n := range p.Custom {
		caps[name] = n
	}
	return caps
}

// CacheConfig configures the local CAS directory, the metadata index, and
// an optional remote.
type CacheConfig struct {
	Directory  string `yaml:"directory"`
	IndexPath  string `yaml:"index_path"`
	RemoteURL  string `yaml:"remote_url,omitempty"`
	PushURL    string `yaml:"push_url,omitempty"`
	Strict     bool   `yaml:"strict"`
}

// RetryConfig bounds job retry/backoff.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

// BaseDelayDuration parses BaseDelay, falling back to 500ms.
func (r RetryConfig) BaseDelayDuration() time.Duration {
	d, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// MaxDelayDuration parses MaxDelay, falling back to 30s.
func (r RetryConfig) MaxDelayDuration() time.Duration {
	d, err := time.ParseDuration(r.MaxDelay)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// QueueConfig bounds how long a single stage's job may run before the
// scheduler treats it as stalled.
type QueueConfig struct {
	TrackTimeout string `yaml:"track_timeout"`
	FetchTimeout string `yaml:"fetch_timeout"`
	BuildTimeout string `yaml:"build_timeout"`
	PushTimeout  string `yaml:"push_timeout"`
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (q QueueConfig) Track() time.Duration { return parseOr(q.TrackTimeout, 5*time.Minute) }
func (q QueueConfig) Fetch() time.Duration { return parseOr(q.FetchTimeout, 10*time.Minute) }
func (q QueueConfig) Build() time.Duration { return parseOr(q.BuildTimeout, 30*time.Minute) }
func (q QueueConfig) Push() time.Duration  { return parseOr(q.PushTimeout, 5*time.Minute) }

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	Format     string          `yaml:"format"`
	File       string          `yaml:"file"`
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// ToLoggingConfig adapts LoggingConfig to logging.Config.
func (l LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{
		DebugMode:  l.DebugMode,
		Categories: l.Categories,
	}
}

// DefaultConfig returns forge's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pools: PoolConfig{
			Process: 4,
			Network: 8,
			Cache:   4,
		},
		Cache: CacheConfig{
			Directory: ".forge/cas",
			IndexPath: ".forge/index.db",
			Strict:    false,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  "500ms",
			MaxDelay:   "30s",
		},
		Queues: QueueConfig{
			TrackTimeout: "5m",
			FetchTimeout: "10m",
			BuildTimeout: "30m",
			PushTimeout:  "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "forge.log",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults if
// the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: cache=%s pools=%+v", cfg.Cache.Directory, cfg.Pools)
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides implements spec.md's CACHE_DIR / MAX_JOBS / LOG_LEVEL
// environment contract.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("CACHE_DIR"); dir != "" {
		c.Cache.Directory = dir
	}
	if jobs := os.Getenv("MAX_JOBS"); jobs != "" {
		if n, err := strconv.ParseInt(jobs, 10, 64); err == nil && n > 0 {
			c.Pools.Process = n
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if url := os.Getenv("FORGE_REMOTE_CACHE_URL"); url != "" {
		c.Cache.RemoteURL = url
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Cache.Directory == "" {
		return fmt.Errorf("cache.directory must not be empty")
	}
	if c.Pools.Process <= 0 {
		return fmt.Errorf("pools.process must be positive, got %d", c.Pools.Process)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	return nil
}
