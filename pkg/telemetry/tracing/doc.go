// Package tracing wires OpenTelemetry into the proxy.
//
// When enabled, every proxied request gets a span exported over OTLP gRPC.
// Inbound W3C traceparent headers are honoured and the span context is
// injected into the request sent upstream. When disabled, a noop tracer is
// used and no headers are added.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    sampler: ratio
//	    sample_ratio: 0.1
package tracing
