// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for agentmem.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// APIKey binds one API key to one tenant. Every request authenticated with
// the key operates on that tenant's store.
type APIKey struct {
	Key    string `yaml:"key"`
	Tenant string `yaml:"tenant"`
}

// RateLimitConfig is a per-tenant fixed-window limit. Zero requests
// disables limiting.
type RateLimitConfig struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

// Enabled reports whether rate limiting is configured.
func (r RateLimitConfig) Enabled() bool { return r.Requests > 0 }

// ParsedWindow returns the window as a time.Duration.
// Assumes the value has been validated by Validate.
func (r RateLimitConfig) ParsedWindow() time.Duration {
	d, err := time.ParseDuration(r.Window)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ServerConfig holds HTTP gateway configuration.
type ServerConfig struct {
	Listen          string          `yaml:"listen"`
	Keys            []APIKey        `yaml:"keys"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ReadTimeout     string          `yaml:"read_timeout"`
	WriteTimeout    string          `yaml:"write_timeout"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
}

// ParsedReadTimeout returns the read timeout as a time.Duration.
func (s ServerConfig) ParsedReadTimeout() time.Duration {
	return parseDurationOr(s.ReadTimeout, 10*time.Second)
}

// ParsedWriteTimeout returns the write timeout as a time.Duration.
func (s ServerConfig) ParsedWriteTimeout() time.Duration {
	return parseDurationOr(s.WriteTimeout, 30*time.Second)
}

// ParsedShutdownTimeout returns the shutdown grace period.
func (s ServerConfig) ParsedShutdownTimeout() time.Duration {
	return parseDurationOr(s.ShutdownTimeout, 10*time.Second)
}

// StoreConfig describes the per-tenant stores the server creates.
type StoreConfig struct {
	// Dim is the embedding dimension shared by every tenant store.
	Dim int `yaml:"dim"`
	// Index is hnsw or exact.
	Index string `yaml:"index"`
	// MaxElements caps HNSW stores. Ignored for exact.
	MaxElements int `yaml:"max_elements"`
	// DataDir, when set, makes tenants disk-backed under this directory.
	// Empty keeps every tenant in memory.
	DataDir string `yaml:"data_dir"`
	// Checkpoint enables exact-index checkpoints for disk-backed tenants.
	Checkpoint bool `yaml:"checkpoint"`
}

// AuditConfig selects where operation audit entries go.
type AuditConfig struct {
	// Backend is none, jsonl, or sqlite.
	Backend string `yaml:"backend"`
	// Path is the JSONL file or SQLite database path.
	Path string `yaml:"path"`
}

// JobsConfig schedules background maintenance. Empty cron expressions
// disable the corresponding job.
type JobsConfig struct {
	// Checkpoint is a 5-field cron expression for checkpointing
	// disk-backed tenants.
	Checkpoint string `yaml:"checkpoint"`
	// Retention is a 5-field cron expression for the pruning job.
	Retention string `yaml:"retention"`
	// RetentionMaxAge prunes episodes older than this duration.
	RetentionMaxAge string `yaml:"retention_max_age"`
	// RetentionKeep, when positive, prunes each tenant down to its N
	// newest episodes instead.
	RetentionKeep int `yaml:"retention_keep"`
}

// ParsedRetentionMaxAge returns the retention age as a time.Duration,
// or zero when unset.
func (j JobsConfig) ParsedRetentionMaxAge() time.Duration {
	if j.RetentionMaxAge == "" {
		return 0
	}
	return parseDurationOr(j.RetentionMaxAge, 0)
}

// TelemetryConfig controls the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample"`
	Insecure bool    `yaml:"insecure"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.RateLimit.Window == "" {
		c.Server.RateLimit.Window = "1m"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Store.Dim == 0 {
		c.Store.Dim = 384
	}
	if c.Store.Index == "" {
		c.Store.Index = "hnsw"
	}
	if c.Store.MaxElements == 0 {
		c.Store.MaxElements = 20_000
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "none"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Telemetry.Sample == 0 {
		c.Telemetry.Sample = 1.0
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
