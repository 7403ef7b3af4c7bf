package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/transaction"
)

// Collector owns the gateway's Prometheus metrics. It observes policy
// applications as a control.Observer and exposes recorders for the gateway
// and backend layers.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	policyMetrics  *PolicyMetrics
	backendMetrics *BackendMetrics

	// models bounds the client-controlled model label.
	models *CardinalityLimiter
}

var _ control.Observer = (*Collector)(nil)

// NewCollector creates a collector registered on registry. If registry is
// nil a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:         cfg,
		registry:       registry,
		requestMetrics: NewRequestMetrics(cfg.Namespace, registry),
		policyMetrics:  NewPolicyMetrics(cfg.Namespace, registry),
		backendMetrics: NewBackendMetrics(cfg.Namespace, registry),
		models:         NewCardinalityLimiter(200),
	}
}

// ObservePolicy implements control.Observer. Applications are labelled by
// variant so user-chosen names cannot blow up cardinality.
func (c *Collector) ObservePolicy(ctx context.Context, p control.Policy, _ *transaction.Transaction) (context.Context, func(error)) {
	start := time.Now()
	kind := p.Kind().String()
	return ctx, func(err error) {
		c.policyMetrics.RecordApplication(kind, outcome(err), time.Since(start))
	}
}

// RecordRequest records a completed chat-completion call at the gateway.
// errorKind is empty on success.
func (c *Collector) RecordRequest(model string, statusCode int, errorKind string, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	if !c.models.Allow(model) {
		model = "other"
	}
	c.requestMetrics.RecordRequest(model, statusCode, errorKind, duration)
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (c *Collector) TrackInFlight() func() {
	c.requestMetrics.inFlight.Inc()
	return c.requestMetrics.inFlight.Dec
}

// RecordPolicyReload records a root policy reload attempt.
func (c *Collector) RecordPolicyReload(source string, err error) {
	c.policyMetrics.RecordReload(source, err)
}

// UpdateBackendHealth sets the backend health gauge.
func (c *Collector) UpdateBackendHealth(backend string, healthy bool) {
	c.backendMetrics.UpdateHealth(backend, healthy)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// outcome is "ok" or the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return control.KindOf(err).String()
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or there is room for it.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
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
