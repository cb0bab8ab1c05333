package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

const (
	// DefaultNamespace prefixes every metric name.
	DefaultNamespace = "ollama"

	// DefaultMaxModels caps the distinct values of the model label.
	DefaultMaxModels = 100

	// OtherModel replaces model names beyond the cap.
	OtherModel = "other"
)

// Fixed histogram buckets, covering sub-second to multi-minute latencies
// and zero to thousands of tokens.
var (
	DurationBuckets   = []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0}
	TokenBuckets      = []float64{10, 50, 100, 250, 500, 1000, 2000, 5000}
	ThroughputBuckets = []float64{1, 5, 10, 20, 30, 50, 75, 100, 150, 200}
)

// Collector is the metrics aggregator. It owns a private registry so tests
// and multiple proxies in one process never collide.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics   *RequestMetrics
	analyticsMetrics *AnalyticsMetrics

	models *CardinalityLimiter
}

// NewCollector creates a collector. If registry is nil a new private
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	local := config.MetricsConfig{Enabled: true}
	if cfg != nil {
		local = *cfg
	}
	cfg = &local
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		models:   NewCardinalityLimiter(DefaultMaxModels),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.analyticsMetrics = NewAnalyticsMetrics(cfg, registry)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// ObserveDuration records a request duration.
func (c *Collector) ObserveDuration(model, endpoint, category string, seconds float64) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.ObserveDuration(c.modelLabel(model), endpoint, category, seconds)
}

// ObserveTokens records a generated token count. Zero counts are ignored.
func (c *Collector) ObserveTokens(model, category string, count int) {
	if !c.config.Enabled || count <= 0 {
		return
	}
	c.requestMetrics.ObserveTokens(c.modelLabel(model), category, count)
}

// ObserveThroughput records tokens per second. Non-positive values are
// ignored.
func (c *Collector) ObserveThroughput(model, category string, tokensPerSecond float64) {
	if !c.config.Enabled || tokensPerSecond <= 0 {
		return
	}
	c.requestMetrics.ObserveThroughput(c.modelLabel(model), category, tokensPerSecond)
}

// IncRequest counts one finished request.
func (c *Collector) IncRequest(model, endpoint, category, status string) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.IncRequest(c.modelLabel(model), endpoint, category, status)
}

// ActiveInc marks a request as in flight.
func (c *Collector) ActiveInc() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.activeRequests.Inc()
}

// ActiveDec marks an in-flight request as finished.
func (c *Collector) ActiveDec() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.activeRequests.Dec()
}

// ObserveRecord publishes the full set of observations for one finalized
// interaction.
func (c *Collector) ObserveRecord(r *analytics.InteractionRecord) {
	c.ObserveDuration(r.Model, r.Endpoint, r.PromptCategory, r.DurationSeconds)
	c.IncRequest(r.Model, r.Endpoint, r.PromptCategory, string(r.Status))
	if r.TokensGenerated > 0 {
		c.ObserveTokens(r.Model, r.PromptCategory, r.TokensGenerated)
		c.ObserveThroughput(r.Model, r.PromptCategory, r.TokensPerSecond())
	}
}

// QueueDepth implements writer.Observer.
func (c *Collector) QueueDepth(n int) {
	if !c.config.Enabled {
		return
	}
	c.analyticsMetrics.queueSize.Set(float64(n))
}

// RecordWrite implements writer.Observer.
func (c *Collector) RecordWrite(backend string, err error) {
	if !c.config.Enabled {
		return
	}
	c.analyticsMetrics.RecordWrite(backend, err)
}

// RecordDrop implements writer.Observer.
func (c *Collector) RecordDrop() {
	if !c.config.Enabled {
		return
	}
	c.analyticsMetrics.droppedTotal.Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) modelLabel(model string) string {
	if c.models.Allow(model) {
		return model
	}
	return OtherModel
}

// CardinalityLimiter bounds the number of distinct values admitted for a
// label.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already admitted or can still be.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
