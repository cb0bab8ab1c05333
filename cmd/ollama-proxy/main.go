// Ollama Proxy is a transparent reverse proxy for the Ollama HTTP API.
//
// It forwards every request to the upstream daemon unchanged, streams
// responses back as they arrive, and records each interaction for
// analytics:
//   - Prometheus metrics with bounded label cardinality
//   - Prompt categorization
//   - Asynchronous persistence to jsonl, sqlite, loki or memory backends
//   - Search, export and a dashboard over recorded interactions
//
// Usage:
//
//	# Start the proxy with defaults (listen :11434, upstream :11435)
//	ollama-proxy run
//
//	# Start with a configuration file
//	ollama-proxy run --config /etc/ollama-proxy/config.yaml
//
//	# Search recorded interactions
//	ollama-proxy analytics search --model llama3:8b --limit 20
//
//	# Remove records older than 30 days
//	ollama-proxy analytics cleanup --days 30
//
//	# Export to CSV
//	ollama-proxy analytics export --format csv --output interactions.csv
package main

func main() {
	Execute()
}
