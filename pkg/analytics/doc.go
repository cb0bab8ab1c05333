// Package analytics defines the interaction record model and the
// persistence contracts shared by the analytics pipeline.
//
// # Overview
//
// Every proxied request produces exactly one InteractionRecord. Records are
// handed to the writer (package writer), which serializes them into one
// Backend through a single consumer goroutine. Backends that also implement
// Searcher support the query API; the others answer queries with a
// CapabilityError.
//
// # Derived Fields
//
// tokens_per_second and cost are computed from other fields on demand and
// are never stored independently:
//
//	tokens_per_second = tokens_generated / duration_seconds   (0 unless both > 0)
//	cost = prompt_tokens*0.00001 + tokens_generated*0.00003     (0 unless both > 0)
//
// # Sub-packages
//
//   - storage: jsonl, sqlite, loki and memory backends
//   - writer: bounded queue with a single consumer
//   - retention: cron-driven cleanup
//   - query: HTTP/CLI parameter parsing and validation
//   - export: CSV and JSON exporters
package analytics
