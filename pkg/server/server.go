package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/writer"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/health"
)

// AnalyticsStore is the analytics pipeline as seen by the HTTP API.
type AnalyticsStore interface {
	Backend() string
	Searchable() bool
	Stats() writer.Stats
	Search(ctx context.Context, q *analytics.Query) ([]*analytics.InteractionRecord, error)
	Count(ctx context.Context, q *analytics.Query) (int64, error)
	Get(ctx context.Context, id string) (*analytics.InteractionRecord, error)
	Models(ctx context.Context) ([]analytics.ModelUsage, error)
	Summary(ctx context.Context, since time.Time) (*analytics.Summary, error)
}

// CategorySource reports the categorizer's current label set.
type CategorySource interface {
	Count() int
	Labels() []string
}

// Deps are the components the server routes to.
type Deps struct {
	// Proxy serves every path not claimed by the proxy's own endpoints.
	Proxy http.Handler

	Analytics  AnalyticsStore
	Categories CategorySource

	// Metrics serves the exposition format. Nil disables the endpoint.
	Metrics http.Handler

	Health   *health.Checker
	Upstream *health.Upstream

	// Version serves build information. Nil disables /version.
	Version http.Handler
}

// Server is the HTTP front of the proxy.
type Server struct {
	config       *config.Config
	deps         Deps
	dashboard    *template.Template
	handler      http.Handler
	httpServer   *http.Server
	started      time.Time
	logger       *slog.Logger
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server. It fails only when a configured dashboard
// template cannot be loaded.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Proxy == nil || deps.Analytics == nil {
		return nil, errors.New("server requires a proxy and an analytics store")
	}
	if deps.Health == nil {
		deps.Health = health.New(cfg.Upstream.HealthTimeout)
	}
	if deps.Upstream == nil {
		deps.Upstream = health.NewUpstream(cfg.Upstream.URL, cfg.Upstream.HealthTimeout)
	}

	dashboard, err := loadDashboard(cfg.Proxy.DashboardPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		deps:      deps,
		dashboard: dashboard,
		started:   time.Now(),
		logger:    slog.Default().With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.started)
}

// Start listens on the configured address and serves until ctx is
// cancelled or the listener fails. Cancellation triggers a graceful
// shutdown bounded by the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting proxy server",
			"address", ln.Addr().String(),
			"upstream", s.config.Upstream.URL,
			"backend", s.deps.Analytics.Backend(),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including open streams, up to the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.Unlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("proxy server stopped")
	})

	return shutdownErr
}

// liveConfig returns the published global configuration, which tracks
// reloads, falling back to the configuration the server was built with.
func (s *Server) liveConfig() *config.Config {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	return s.config
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
