package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/sluice/pkg/control"
)

// BackendMetrics tracks dispatches to the backend provider.
//
// Metrics:
//   - sluice_backend_health{backend}: 1=healthy, 0=unhealthy
//   - sluice_backend_dispatch_duration_seconds{backend}
//   - sluice_backend_dispatches_total{backend, status}
//   - sluice_backend_errors_total{backend, reason}
type BackendMetrics struct {
	health     *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
	dispatches *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// NewBackendMetrics creates and registers backend metrics.
func NewBackendMetrics(namespace string, registry *prometheus.Registry) *BackendMetrics {
	bm := &BackendMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_health",
				Help:      "Backend health status (1=healthy, 0=unhealthy)",
			},
			[]string{"backend"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_dispatch_duration_seconds",
				Help:      "Backend dispatch latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"backend"},
		),

		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_dispatches_total",
				Help:      "Total number of backend dispatches by HTTP status (0 when no response)",
			},
			[]string{"backend", "status"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of failed backend dispatches by transport reason",
			},
			[]string{"backend", "reason"},
		),
	}

	registry.MustRegister(
		bm.health,
		bm.latency,
		bm.dispatches,
		bm.errors,
	)

	return bm
}

// UpdateHealth sets the health gauge.
func (bm *BackendMetrics) UpdateHealth(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	bm.health.WithLabelValues(backend).Set(value)
}

// RecordDispatch records one dispatch outcome.
func (bm *BackendMetrics) RecordDispatch(backend string, status int, err error, duration time.Duration) {
	bm.latency.WithLabelValues(backend).Observe(duration.Seconds())
	bm.dispatches.WithLabelValues(backend, strconv.Itoa(status)).Inc()
	if err != nil {
		bm.errors.WithLabelValues(backend, reasonOf(err)).Inc()
	}
}

// reasonOf labels a dispatch error.
func reasonOf(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var tf control.TransportFailure
	if errors.As(err, &tf) {
		return string(tf.TransportReason())
	}
	return "other"
}

// instrumentedBackend records metrics around a control.BackendClient.
type instrumentedBackend struct {
	next    control.BackendClient
	name    string
	metrics *BackendMetrics
}

// InstrumentBackend wraps next so every dispatch is recorded under name.
func (c *Collector) InstrumentBackend(next control.BackendClient, name string) control.BackendClient {
	return &instrumentedBackend{next: next, name: name, metrics: c.backendMetrics}
}

// Dispatch implements control.BackendClient.
func (b *instrumentedBackend) Dispatch(ctx context.Context, req control.BackendRequest) (*control.BackendResponse, error) {
	start := time.Now()
	resp, err := b.next.Dispatch(ctx, req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else {
		var sf interface{ HTTPStatus() int }
		if errors.As(err, &sf) {
			status = sf.HTTPStatus()
		}
	}
	b.metrics.RecordDispatch(b.name, status, err, time.Since(start))
	return resp, err
}
