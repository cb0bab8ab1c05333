package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

// RequestMetrics tracks proxied request metrics.
type RequestMetrics struct {
	requestDuration *prometheus.HistogramVec
	tokensGenerated *prometheus.HistogramVec
	tokensPerSecond *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	activeRequests  prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration distribution",
				Buckets:   DurationBuckets,
			},
			[]string{"model", "endpoint", "prompt_category"},
		),

		tokensGenerated: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "tokens_generated",
				Help:      "Distribution of tokens generated",
				Buckets:   TokenBuckets,
			},
			[]string{"model", "prompt_category"},
		),

		tokensPerSecond: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "tokens_per_second",
				Help:      "Distribution of token generation speed",
				Buckets:   ThroughputBuckets,
			},
			[]string{"model", "prompt_category"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of requests",
			},
			[]string{"model", "endpoint", "prompt_category", "status"},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "active_requests",
				Help:      "Currently active requests",
			},
		),
	}

	registry.MustRegister(
		rm.requestDuration,
		rm.tokensGenerated,
		rm.tokensPerSecond,
		rm.requestsTotal,
		rm.activeRequests,
	)

	return rm
}

// ObserveDuration records a request duration in seconds.
func (rm *RequestMetrics) ObserveDuration(model, endpoint, category string, seconds float64) {
	rm.requestDuration.WithLabelValues(model, endpoint, category).Observe(seconds)
}

// ObserveTokens records a generated token count.
func (rm *RequestMetrics) ObserveTokens(model, category string, count int) {
	rm.tokensGenerated.WithLabelValues(model, category).Observe(float64(count))
}

// ObserveThroughput records generation speed.
func (rm *RequestMetrics) ObserveThroughput(model, category string, tokensPerSecond float64) {
	rm.tokensPerSecond.WithLabelValues(model, category).Observe(tokensPerSecond)
}

// IncRequest increments the request counter.
func (rm *RequestMetrics) IncRequest(model, endpoint, category, status string) {
	rm.requestsTotal.WithLabelValues(model, endpoint, category, status).Inc()
}
