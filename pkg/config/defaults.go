package config

import (
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress         = ":11434"
	DefaultReadTimeout           = 60 * time.Second
	DefaultIdleTimeout           = 120 * time.Second
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultMaxHeaderBytes        = 1048576 // 1MB
	DefaultMaxConcurrentRequests = 50

	// Upstream defaults
	DefaultUpstreamURL                   = "http://localhost:11435"
	DefaultUpstreamDialTimeout           = 10 * time.Second
	DefaultUpstreamResponseHeaderTimeout = 5 * time.Minute
	DefaultUpstreamHealthTimeout         = 5 * time.Second

	// Categorizer defaults
	DefaultCategoryCeiling = 50
	DefaultOverflowLabel   = "other"

	// Analytics defaults
	DefaultAnalyticsBackend          = "sqlite"
	DefaultAnalyticsDataDir          = "./ollama_analytics"
	DefaultAnalyticsRetentionDays    = 7
	DefaultAnalyticsCleanupSchedule  = "0 * * * *"
	DefaultAnalyticsQueueSize        = 1000
	DefaultAnalyticsWriteTimeout     = 5 * time.Second
	DefaultAnalyticsPromptMaxLength  = 1000
	DefaultAnalyticsPreviewMaxLength = 200
	DefaultSQLitePath                = "ollama_analytics.db"
	DefaultSQLiteDriver              = "sqlite"
	DefaultSQLiteWALMode             = true
	DefaultSQLiteBusyTimeout         = 5 * time.Second
	DefaultLokiTimeout               = 2 * time.Second
	DefaultQueryDefaultLimit         = 100
	DefaultQueryMaxLimit             = 10000

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedactPII   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "ollama"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "ollama-proxy"
)

// Default returns a configuration with every field set to its default.
// YAML documents are decoded on top of it so boolean defaults survive
// keys that are absent from the file.
func Default() *Config {
	cfg := &Config{}
	cfg.Analytics.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
// Boolean fields are left untouched; see Default.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxConcurrentRequests == 0 {
		cfg.Proxy.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}

	// Upstream defaults
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = DefaultUpstreamURL
	}
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = DefaultUpstreamDialTimeout
	}
	if cfg.Upstream.ResponseHeaderTimeout == 0 {
		cfg.Upstream.ResponseHeaderTimeout = DefaultUpstreamResponseHeaderTimeout
	}
	if cfg.Upstream.HealthTimeout == 0 {
		cfg.Upstream.HealthTimeout = DefaultUpstreamHealthTimeout
	}

	// Categorizer defaults
	if cfg.Categorizer.Ceiling == 0 {
		cfg.Categorizer.Ceiling = DefaultCategoryCeiling
	}
	if cfg.Categorizer.OverflowLabel == "" {
		cfg.Categorizer.OverflowLabel = DefaultOverflowLabel
	}

	// Analytics defaults
	if cfg.Analytics.Backend == "" {
		cfg.Analytics.Backend = DefaultAnalyticsBackend
	}
	if cfg.Analytics.DataDir == "" {
		cfg.Analytics.DataDir = DefaultAnalyticsDataDir
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = DefaultAnalyticsRetentionDays
	}
	if cfg.Analytics.CleanupSchedule == "" {
		cfg.Analytics.CleanupSchedule = DefaultAnalyticsCleanupSchedule
	}
	if cfg.Analytics.QueueSize == 0 {
		cfg.Analytics.QueueSize = DefaultAnalyticsQueueSize
	}
	if cfg.Analytics.WriteTimeout == 0 {
		cfg.Analytics.WriteTimeout = DefaultAnalyticsWriteTimeout
	}
	if cfg.Analytics.PromptMaxLength == 0 {
		cfg.Analytics.PromptMaxLength = DefaultAnalyticsPromptMaxLength
	}
	if cfg.Analytics.PreviewMaxLength == 0 {
		cfg.Analytics.PreviewMaxLength = DefaultAnalyticsPreviewMaxLength
	}
	if cfg.Analytics.SQLite.Path == "" {
		cfg.Analytics.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Analytics.SQLite.Driver == "" {
		cfg.Analytics.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Analytics.SQLite.BusyTimeout == 0 {
		cfg.Analytics.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Analytics.Loki.Timeout == 0 {
		cfg.Analytics.Loki.Timeout = DefaultLokiTimeout
	}
	if cfg.Analytics.Query.DefaultLimit == 0 {
		cfg.Analytics.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Analytics.Query.MaxLimit == 0 {
		cfg.Analytics.Query.MaxLimit = DefaultQueryMaxLimit
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}

// SQLitePath returns the database file path resolved against the data
// directory.
func (c *AnalyticsConfig) SQLitePath() string {
	if filepath.IsAbs(c.SQLite.Path) {
		return c.SQLite.Path
	}
	return filepath.Join(c.DataDir, c.SQLite.Path)
}

// RetentionHorizon returns the retention window as a duration.
func (c *AnalyticsConfig) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
