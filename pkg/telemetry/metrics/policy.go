package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks policy applications and root policy reloads.
//
// Metrics:
//   - sluice_policy_applications_total{policy, outcome}
//   - sluice_policy_application_duration_seconds{policy}
//   - sluice_policy_reloads_total{source, result}
type PolicyMetrics struct {
	applicationsTotal   *prometheus.CounterVec
	applicationDuration *prometheus.HistogramVec
	reloadsTotal        *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(namespace string, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		applicationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_applications_total",
				Help:      "Total number of policy applications by variant and outcome",
			},
			[]string{"policy", "outcome"},
		),

		applicationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_application_duration_seconds",
				Help:      "Duration of policy applications in seconds, including children and dispatch",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~42s
			},
			[]string{"policy"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_reloads_total",
				Help:      "Total number of root policy reload attempts",
			},
			[]string{"source", "result"},
		),
	}

	registry.MustRegister(
		pm.applicationsTotal,
		pm.applicationDuration,
		pm.reloadsTotal,
	)

	return pm
}

// RecordApplication records one policy application.
func (pm *PolicyMetrics) RecordApplication(policy, outcome string, duration time.Duration) {
	pm.applicationsTotal.WithLabelValues(policy, outcome).Inc()
	pm.applicationDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// RecordReload records a reload attempt.
func (pm *PolicyMetrics) RecordReload(source string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	pm.reloadsTotal.WithLabelValues(source, result).Inc()
}
