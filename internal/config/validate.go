package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

// tenantPattern restricts tenant ids to characters safe for directory and
// metric label use.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// cronParser accepts the same 5-field expressions the job scheduler
// takes, so a config that validates also starts.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the structural validity of a Config: version, key/tenant
// bindings, durations, cron expressions, and enum fields. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", cfg.Log.Format))
	}

	errs = append(errs, validateServer(cfg.Server)...)
	errs = append(errs, validateStore(cfg.Store)...)
	errs = append(errs, validateAudit(cfg.Audit)...)
	errs = append(errs, validateJobs(cfg.Jobs)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	return errors.Join(errs...)
}

func validateServer(s ServerConfig) []error {
	var errs []error

	if len(s.Keys) == 0 {
		errs = append(errs, errors.New("config: server.keys must bind at least one API key to a tenant"))
	}
	seen := make(map[string]string, len(s.Keys))
	for i, k := range s.Keys {
		if k.Key == "" {
			errs = append(errs, fmt.Errorf("config: server.keys[%d]: key is required", i))
		}
		if k.Tenant == "" {
			errs = append(errs, fmt.Errorf("config: server.keys[%d]: tenant is required", i))
		} else if !tenantPattern.MatchString(k.Tenant) {
			errs = append(errs, fmt.Errorf("config: server.keys[%d]: tenant %q may only contain [A-Za-z0-9_-]", i, k.Tenant))
		}
		if prev, dup := seen[k.Key]; dup {
			errs = append(errs, fmt.Errorf("config: server.keys[%d]: key already bound to tenant %q", i, prev))
		} else if k.Key != "" {
			seen[k.Key] = k.Tenant
		}
	}

	if s.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("config: server.rate_limit.requests must not be negative, got %d", s.RateLimit.Requests))
	}
	if s.RateLimit.Enabled() {
		errs = append(errs, validateDuration("server.rate_limit.window", s.RateLimit.Window)...)
	}
	errs = append(errs, validateDuration("server.read_timeout", s.ReadTimeout)...)
	errs = append(errs, validateDuration("server.write_timeout", s.WriteTimeout)...)
	errs = append(errs, validateDuration("server.shutdown_timeout", s.ShutdownTimeout)...)

	return errs
}

func validateStore(s StoreConfig) []error {
	var errs []error

	if s.Dim <= 0 {
		errs = append(errs, fmt.Errorf("config: store.dim must be positive, got %d", s.Dim))
	}
	switch s.Index {
	case "hnsw", "exact":
	default:
		errs = append(errs, fmt.Errorf("config: store.index %q is not one of hnsw, exact", s.Index))
	}
	if s.Index == "hnsw" && s.MaxElements <= 0 {
		errs = append(errs, fmt.Errorf("config: store.max_elements must be positive for hnsw, got %d", s.MaxElements))
	}

	return errs
}

func validateAudit(a AuditConfig) []error {
	var errs []error

	switch a.Backend {
	case "none":
	case "jsonl", "sqlite":
		if a.Path == "" {
			errs = append(errs, fmt.Errorf("config: audit.path is required for the %s backend", a.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("config: audit.backend %q is not one of none, jsonl, sqlite", a.Backend))
	}

	return errs
}

func validateJobs(j JobsConfig) []error {
	var errs []error

	errs = append(errs, validateCron("jobs.checkpoint", j.Checkpoint)...)
	errs = append(errs, validateCron("jobs.retention", j.Retention)...)

	if j.RetentionKeep < 0 {
		errs = append(errs, fmt.Errorf("config: jobs.retention_keep must not be negative, got %d", j.RetentionKeep))
	}
	if j.RetentionMaxAge != "" {
		errs = append(errs, validateDuration("jobs.retention_max_age", j.RetentionMaxAge)...)
	}
	if j.Retention != "" && j.RetentionMaxAge == "" && j.RetentionKeep == 0 {
		errs = append(errs, errors.New("config: jobs.retention is scheduled but neither retention_max_age nor retention_keep is set"))
	}

	return errs
}

func validateTelemetry(t TelemetryConfig) []error {
	var errs []error

	if !t.Enabled {
		return nil
	}
	if t.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}
	if t.Sample < 0 || t.Sample > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample must be within [0, 1], got %v", t.Sample))
	}

	return errs
}

func validateDuration(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("config: %s: invalid duration %q: %w", field, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("config: %s: duration must be positive, got %q", field, value)}
	}
	return nil
}

func validateCron(field, expr string) []error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return []error{fmt.Errorf("config: %s: invalid cron expression %q: %w", field, expr, err)}
	}
	return nil
}
