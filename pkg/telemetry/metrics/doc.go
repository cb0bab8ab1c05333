// Package metrics provides the Prometheus metrics aggregator for the proxy.
//
// # Overview
//
// Every proxied request is reduced to a handful of observations keyed by a
// small label set: model, endpoint, prompt category and status. The prompt
// category comes from the categorizer, which caps how many distinct values
// that label can take; the model label is capped by a cardinality limiter
// that folds unseen models into "other" once the limit is reached.
//
// # Metrics
//
//	ollama_request_duration_seconds{model,endpoint,prompt_category}
//	ollama_tokens_generated{model,prompt_category}
//	ollama_tokens_per_second{model,prompt_category}
//	ollama_requests_total{model,endpoint,prompt_category,status}
//	ollama_active_requests
//	ollama_analytics_queue_size
//	ollama_analytics_writes_total{backend,status}
//	ollama_analytics_dropped_total
//
// Token and throughput histograms are only observed when a request
// generated at least one token.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.ActiveInc()
//	defer collector.ActiveDec()
//	...
//	collector.ObserveRecord(record)
//
//	http.Handle("/metrics", collector.Handler())
//
// All operations are safe for concurrent use and never block on I/O.
// The collector also implements the analytics writer's Observer interface.
package metrics
