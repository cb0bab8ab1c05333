// Package query turns analytics API and CLI filter parameters into a
// validated analytics.Query.
//
// Recognized parameters: model, search (alias prompt_search), category,
// endpoint, status, start_time, end_time (unix seconds or RFC3339),
// min_tokens, max_tokens, min_latency, max_latency (milliseconds),
// limit and offset.
package query
