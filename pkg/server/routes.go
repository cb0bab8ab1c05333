package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/proxy/middleware"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/tracing"
)

// setupRoutes mounts the proxy's own endpoints and sends everything else
// to the reverse proxy.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware,
		middleware.RecoveryMiddleware,
	)

	if s.deps.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
		r.Method(http.MethodGet, s.config.Telemetry.Metrics.Path, s.deps.Metrics)
	}

	r.Get("/health", s.deps.Health.LivenessHandler())
	r.Get("/ready", s.deps.Health.ReadinessHandler())
	r.Get("/test", s.handleTest)
	if s.deps.Version != nil {
		r.Method(http.MethodGet, "/version", s.deps.Version)
	}

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/", s.handleDashboard)
		r.Get("/stats", s.handleStats)
		r.Get("/search", s.handleSearch)
		r.Get("/messages", s.handleMessages)
		r.Get("/messages/{id}", s.handleMessage)
		r.Get("/models", s.handleModels)
		r.Get("/export", s.handleExport)
	})

	var proxy http.Handler = s.deps.Proxy
	proxy = tracing.HTTPMiddleware(proxy)
	proxy = middleware.ConcurrencyLimit(s.config.Proxy.MaxConcurrentRequests)(proxy)
	r.Handle("/*", proxy)

	return r
}
