package storage

import (
	"fmt"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

// New creates the backend selected by cfg.Backend.
func New(cfg *config.AnalyticsConfig) (analytics.Backend, error) {
	switch cfg.Backend {
	case "jsonl":
		return NewJSONLStorage(cfg.DataDir)
	case "sqlite":
		return NewSQLiteStorage(&SQLiteConfig{
			Path:        cfg.SQLitePath(),
			Driver:      cfg.SQLite.Driver,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "loki":
		return NewLokiStorage(&LokiConfig{
			URL:     cfg.Loki.URL,
			Timeout: cfg.Loki.Timeout,
			Labels:  cfg.Loki.Labels,
		}), nil
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, analytics.NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown analytics backend %q", cfg.Backend))
	}
}
