// Package health provides liveness and readiness probes for the proxy.
//
// /health reports that the process is serving. /ready runs every registered
// check concurrently, each bounded by the checker's timeout, and responds
// 503 when any of them fails. The proxy registers an upstream connectivity
// check (GET /api/tags against the daemon) and the analytics writer check.
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("upstream", health.NewUpstream(cfg.Upstream.URL, 0).Check)
//	checker.RegisterCheck("analytics", writer.Check)
//
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
package health
