package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateCategorizer(&cfg.Categorizer)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	} else if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: fmt.Sprintf("listen address %q must be in host:port format", cfg.ListenAddress),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.write_timeout", Message: "must not be negative"})
	}
	if cfg.MaxConcurrentRequests < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_concurrent_requests",
			Message: "must be zero (unlimited) or positive",
		})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	u, err := url.Parse(cfg.URL)
	switch {
	case err != nil:
		errs = append(errs, FieldError{
			Field:   "upstream.url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, FieldError{
			Field:   "upstream.url",
			Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
		})
	case u.Host == "":
		errs = append(errs, FieldError{Field: "upstream.url", Message: "host is required"})
	}

	return errs
}

func validateCategorizer(cfg *CategorizerConfig) []FieldError {
	var errs []FieldError

	if cfg.Ceiling < 0 {
		errs = append(errs, FieldError{
			Field:   "categorizer.ceiling",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "jsonl", "sqlite", "loki", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "analytics.backend",
			Message: fmt.Sprintf("unsupported backend %q (valid: jsonl, sqlite, loki, memory)", cfg.Backend),
		})
	}

	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "analytics.retention_days", Message: "must not be negative"})
	}

	if cfg.QueueSize <= 0 {
		errs = append(errs, FieldError{Field: "analytics.queue_size", Message: "must be positive"})
	}

	if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "analytics.cleanup_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if cfg.Backend == "sqlite" {
		switch cfg.SQLite.Driver {
		case "sqlite", "sqlite3":
		default:
			errs = append(errs, FieldError{
				Field:   "analytics.sqlite.driver",
				Message: fmt.Sprintf("unsupported driver %q (valid: sqlite, sqlite3)", cfg.SQLite.Driver),
			})
		}
	}

	if cfg.Loki.URL != "" {
		if _, err := url.ParseRequestURI(cfg.Loki.URL); err != nil {
			errs = append(errs, FieldError{
				Field:   "analytics.loki.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	if cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{
			Field:   "analytics.query.default_limit",
			Message: "must not exceed max_limit",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: json, text, console)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (valid: always, never, ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "must be between 0.0 and 1.0",
			})
		}
	}

	return errs
}
