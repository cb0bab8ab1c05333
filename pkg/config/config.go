package config

import "time"

// Config is the root configuration structure for the Ollama proxy.
// It contains the proxy server, upstream daemon, prompt categorizer,
// analytics pipeline and telemetry settings.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, and the in-flight request limit.
	Proxy ProxyConfig `yaml:"proxy"`

	// Upstream describes the model-serving daemon requests are forwarded to.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Categorizer controls how prompts are bucketed into metric labels.
	Categorizer CategorizerConfig `yaml:"categorizer"`

	// Analytics contains configuration for interaction persistence including
	// backend selection, queueing and retention.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the HTTP proxy server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:11434", ":11434").
	// Default: ":11434"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero value means no timeout.
	// Default: 60s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Generation streams can run for minutes, so this is disabled
	// unless set explicitly.
	// Default: 0 (no timeout)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxConcurrentRequests bounds the number of proxied requests in flight.
	// Zero disables the limit.
	// Default: 50
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// DashboardPath optionally points at an HTML template served on
	// /analytics. When empty the built-in dashboard is used.
	DashboardPath string `yaml:"dashboard_path"`
}

// UpstreamConfig describes the model-serving daemon.
type UpstreamConfig struct {
	// URL is the base address of the daemon. Paths and query strings from
	// inbound requests are appended unchanged.
	// Default: "http://localhost:11435"
	URL string `yaml:"url"`

	// DialTimeout bounds establishing the upstream TCP connection.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ResponseHeaderTimeout bounds the wait for upstream response headers.
	// Model loading can take minutes on cold start.
	// Default: 5m
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// HealthTimeout bounds the connectivity probe used by /test and /ready.
	// Default: 5s
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// CategorizerConfig controls prompt categorization.
type CategorizerConfig struct {
	// Ceiling is the maximum number of fingerprint-derived categories.
	// Default: 50
	Ceiling int `yaml:"ceiling"`

	// OverflowLabel is returned for unmatched prompts once the ceiling is hit.
	// Default: "other"
	OverflowLabel string `yaml:"overflow_label"`
}

// AnalyticsConfig contains configuration for interaction record persistence.
type AnalyticsConfig struct {
	// Backend selects the persistence backend. Fixed for the process lifetime.
	// Options: "jsonl", "sqlite", "loki", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// DataDir is the working directory for persisted analytics.
	// Default: "./ollama_analytics"
	DataDir string `yaml:"data_dir"`

	// RetentionDays is the retention horizon in days.
	// Default: 7
	RetentionDays int `yaml:"retention_days"`

	// CleanupSchedule is the cron expression for the retention sweep.
	// Default: "0 * * * *" (hourly)
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// QueueSize is the capacity of the write queue. Records enqueued while
	// the queue is full are dropped.
	// Default: 1000
	QueueSize int `yaml:"queue_size"`

	// WriteTimeout bounds a single backend write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PromptMaxLength truncates stored prompt text.
	// Default: 1000
	PromptMaxLength int `yaml:"prompt_max_length"`

	// PreviewMaxLength truncates the stored response preview.
	// Default: 200
	PreviewMaxLength int `yaml:"preview_max_length"`

	// SQLite configures the indexed store.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Loki configures the remote sink.
	Loki LokiConfig `yaml:"loki"`

	// Query configures the search API.
	Query QueryConfig `yaml:"query"`
}

// SQLiteConfig contains SQLite backend configuration.
type SQLiteConfig struct {
	// Path is the database file. Relative paths are resolved against
	// analytics.data_dir.
	// Default: "ollama_analytics.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// LokiConfig contains remote sink configuration.
type LokiConfig struct {
	// URL is the Loki base address (e.g. "http://localhost:3100").
	// When empty the sink only logs records.
	URL string `yaml:"url"`

	// Timeout bounds a single push.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout"`

	// Labels are static stream labels added to every push.
	Labels map[string]string `yaml:"labels"`
}

// QueryConfig contains search API configuration.
type QueryConfig struct {
	// DefaultLimit is used when a search does not specify a limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the limit a search may request.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII masks API keys, tokens and e-mail addresses in log output.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the exposition endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "ollama"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds exporter calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "ollama-proxy"
	ServiceName string `yaml:"service_name"`
}
