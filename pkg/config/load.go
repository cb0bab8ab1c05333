package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. A missing file is not an error: the proxy
// is commonly launched with environment configuration only, in which case
// defaults are used as the base.
//
// The loading sequence is:
// 1. Load YAML from file (or defaults when path is empty or missing)
// 2. Load a .env file from the working directory, if present
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			cfg, err = parse(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
	}

	// Variables already present in the environment win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The variable names match the ones the proxy has always been deployed with.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	if val := os.Getenv("PROXY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Proxy.ListenAddress = fmt.Sprintf(":%d", port)
		}
	}
	if val := os.Getenv("PROXY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("MAX_CONCURRENT_REQUESTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Proxy.MaxConcurrentRequests = i
		}
	}
	if val := os.Getenv("PROXY_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.ShutdownTimeout = d
		}
	}

	// Upstream overrides. OLLAMA_HOST carries a full URL and wins over the
	// port-only form.
	if val := os.Getenv("OLLAMA_BACKEND_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Upstream.URL = fmt.Sprintf("http://localhost:%d", port)
		}
	}
	if val := os.Getenv("OLLAMA_HOST"); val != "" {
		if !strings.Contains(val, "://") {
			val = "http://" + val
		}
		cfg.Upstream.URL = strings.TrimSuffix(val, "/")
	}

	// Categorizer overrides
	if val := os.Getenv("CATEGORY_CEILING"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Categorizer.Ceiling = i
		}
	}

	// Analytics overrides
	if val := os.Getenv("ANALYTICS_BACKEND"); val != "" {
		cfg.Analytics.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("ANALYTICS_DIR"); val != "" {
		cfg.Analytics.DataDir = val
	}
	if val := os.Getenv("ANALYTICS_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Analytics.RetentionDays = i
		}
	}
	if val := os.Getenv("ANALYTICS_QUEUE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Analytics.QueueSize = i
		}
	}
	if val := os.Getenv("ANALYTICS_SQLITE_DRIVER"); val != "" {
		cfg.Analytics.SQLite.Driver = val
	}
	if val := os.Getenv("LOKI_URL"); val != "" {
		cfg.Analytics.Loki.URL = val
	}

	// Telemetry overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = strings.ToLower(val)
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
}
