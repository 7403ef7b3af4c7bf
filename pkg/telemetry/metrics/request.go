package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks chat-completion calls at the gateway.
//
// Metrics:
//   - sluice_requests_total{model, status, error_kind}
//   - sluice_request_duration_seconds{model}
//   - sluice_requests_in_flight
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(namespace string, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of chat-completion calls handled",
			},
			[]string{"model", "status", "error_kind"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of chat-completion calls in seconds",
				// Optimized for LLM request latencies
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"model"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of chat-completion calls being processed",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.inFlight,
	)

	return rm
}

// RecordRequest records a completed call.
func (rm *RequestMetrics) RecordRequest(model string, statusCode int, errorKind string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(model, strconv.Itoa(statusCode), errorKind).Inc()
	rm.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}
