// Package telemetry groups the proxy's observability packages.
//
// # Components
//
//   - logging: structured slog logging with request context and redaction
//   - metrics: Prometheus collectors for proxied requests and the analytics
//     pipeline, exposed from a private registry
//   - tracing: OpenTelemetry spans per proxied request, exported over OTLP
//   - health: liveness, readiness and upstream probes
//
// Each package is wired independently by the run command; there is no
// umbrella type here.
//
// Label cardinality is bounded everywhere: models are capped by a
// cardinality limiter and prompt categories by the categorizer ceiling, so
// raw prompt text never reaches a metric label.
package telemetry
