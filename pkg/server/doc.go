// Package server is the HTTP front of the Ollama proxy.
//
// It ties together the reverse proxy, the analytics query API, the
// dashboard, health probes and the metrics endpoint, and manages the
// listener lifecycle including graceful shutdown.
//
// # Basic Usage
//
//	srv, err := server.NewServer(cfg, server.Deps{
//	    Proxy:      p,
//	    Analytics:  w,
//	    Categories: cat,
//	    Metrics:    collector.Handler(),
//	    Health:     checker,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start returns once ctx is cancelled and in-flight requests, including
// open streams, have finished or the shutdown timeout has passed.
//
// # Routes
//
//   - GET /health, GET /ready - liveness and readiness probes
//   - GET /metrics - Prometheus exposition (path is configurable)
//   - GET /test - upstream connectivity check via /api/tags
//   - GET /version - build information, when configured
//   - GET /analytics - HTML dashboard
//   - GET /analytics/stats - pipeline status and optional summary (?hours=N)
//   - GET /analytics/search - {results, count, total, limit, offset}
//   - GET /analytics/messages - array of records
//   - GET /analytics/messages/{id} - one record, 404 when absent
//   - GET /analytics/models - per-model usage
//   - GET /analytics/export - CSV or JSON attachment (?format=, ?message_id=)
//
// Every other path is forwarded to the upstream daemon unchanged.
//
// # Middleware Chain
//
// Requests pass through (outermost first):
//  1. RequestID: accepts or generates X-Request-ID
//  2. Logging: logs one line per served request
//  3. Recovery: turns panics into a JSON 500
//
// Proxied requests additionally pass through the concurrency limit and
// trace context extraction.
//
// # Errors
//
// Query validation failures and capability errors (the active backend
// cannot search) are returned as 400 {"error": "..."}. Missing records are
// 404 {"error": "Message not found"}.
package server
