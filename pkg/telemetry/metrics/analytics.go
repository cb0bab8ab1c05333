package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

// AnalyticsMetrics tracks the analytics persistence pipeline.
type AnalyticsMetrics struct {
	queueSize    prometheus.Gauge
	writesTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
}

// NewAnalyticsMetrics creates and registers analytics pipeline metrics.
func NewAnalyticsMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AnalyticsMetrics {
	am := &AnalyticsMetrics{
		queueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "analytics",
				Name:      "queue_size",
				Help:      "Number of interactions waiting to be written",
			},
		),

		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "analytics",
				Name:      "writes_total",
				Help:      "Total analytics records written",
			},
			[]string{"backend", "status"},
		),

		droppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "analytics",
				Name:      "dropped_total",
				Help:      "Analytics records dropped because the queue was full",
			},
		),
	}

	registry.MustRegister(
		am.queueSize,
		am.writesTotal,
		am.droppedTotal,
	)

	return am
}

// RecordWrite counts one backend write by outcome.
func (am *AnalyticsMetrics) RecordWrite(backend string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	am.writesTotal.WithLabelValues(backend, status).Inc()
}
