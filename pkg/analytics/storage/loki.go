package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// LokiPushPath is the Loki push API path appended to the configured URL.
const LokiPushPath = "/loki/api/v1/push"

// LokiConfig contains configuration for the Loki sink.
type LokiConfig struct {
	// URL is the Loki base URL. Empty makes the sink log-only.
	URL string

	// Timeout bounds a single push attempt.
	// Default: 2 seconds
	Timeout time.Duration

	// Labels are static stream labels added to every push.
	Labels map[string]string

	// Client overrides the HTTP client.
	Client *http.Client
}

// LokiStorage forwards records to Loki. It never retries: a failed push is
// reported to the writer, which counts it and moves on.
type LokiStorage struct {
	pushURL string
	labels  map[string]string
	client  *http.Client
	logger  *slog.Logger

	logged atomic.Int64
}

// NewLokiStorage creates a Loki sink.
func NewLokiStorage(cfg *LokiConfig) *LokiStorage {
	if cfg == nil {
		cfg = &LokiConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	labels := map[string]string{"job": "ollama-proxy"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	s := &LokiStorage{
		labels: labels,
		client: client,
		logger: slog.Default().With("component", "analytics.storage.loki"),
	}
	if cfg.URL != "" {
		s.pushURL = strings.TrimRight(cfg.URL, "/") + LokiPushPath
		s.logger.Info("Loki sink initialized", "url", s.pushURL, "timeout", timeout)
	} else {
		s.logger.Warn("no Loki URL configured, analytics records will only be logged")
	}
	return s
}

// Name implements analytics.Backend.
func (s *LokiStorage) Name() string {
	return "loki"
}

// LoggedOnly returns how many records were logged instead of pushed.
func (s *LokiStorage) LoggedOnly() int64 {
	return s.logged.Load()
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Write pushes one record as a single log line.
func (s *LokiStorage) Write(ctx context.Context, r *analytics.InteractionRecord) error {
	line, err := json.Marshal(r)
	if err != nil {
		return analytics.NewStorageError("loki", "write", err)
	}

	if s.pushURL == "" {
		s.logged.Add(1)
		s.logger.Debug("analytics record", "id", r.ID, "model", r.Model, "status", r.Status)
		return nil
	}

	stream := make(map[string]string, len(s.labels)+3)
	for k, v := range s.labels {
		stream[k] = v
	}
	stream["model"] = r.Model
	stream["category"] = r.PromptCategory
	stream["status"] = string(r.Status)

	body, err := json.Marshal(lokiPush{Streams: []lokiStream{{
		Stream: stream,
		Values: [][2]string{{strconv.FormatInt(r.Timestamp.UnixNano(), 10), string(line)}},
	}}})
	if err != nil {
		return analytics.NewStorageError("loki", "write", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.pushURL, bytes.NewReader(body))
	if err != nil {
		return analytics.NewStorageError("loki", "write", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return analytics.NewStorageError("loki", "write", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		return analytics.NewStorageError("loki", "write", fmt.Errorf("push returned %d", resp.StatusCode))
	}
	return nil
}

// Cleanup is a no-op; retention is enforced by Loki.
func (s *LokiStorage) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// Close releases idle connections.
func (s *LokiStorage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
