package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// unhealthyAfter is the number of consecutive failures that marks a backend
// unhealthy.
const unhealthyAfter = 3

// Health tracks the health status of a backend.
type Health struct {
	// Healthy indicates whether the backend is currently healthy
	Healthy bool

	// LastCheck is the timestamp of the last health update
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential failures
	ConsecutiveFailures int

	// LastSuccess is the timestamp of the last successful probe or request
	LastSuccess time.Time

	// TotalRequests is the number of dispatches sent to this backend
	TotalRequests int64

	// FailedRequests is the number of failed dispatches
	FailedRequests int64
}

// IsHealthy returns the current health status.
func (b *HTTPBackend) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health.Healthy
}

// Health returns a snapshot of the backend's health.
func (b *HTTPBackend) Health() Health {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health
}

// updateHealth records the outcome of a probe or dispatch.
func (b *HTTPBackend) updateHealth(success bool, err error) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()

	b.health.LastCheck = time.Now()
	if success {
		if !b.health.Healthy {
			b.logger.Info("backend marked healthy",
				"previous_failures", b.health.ConsecutiveFailures,
			)
		}
		b.health.Healthy = true
		b.health.ConsecutiveFailures = 0
		b.health.LastError = nil
		b.health.LastSuccess = b.health.LastCheck
		return
	}

	b.health.ConsecutiveFailures++
	b.health.LastError = err
	if b.health.Healthy && b.health.ConsecutiveFailures >= unhealthyAfter {
		b.health.Healthy = false
		b.logger.Warn("backend marked unhealthy",
			"consecutive_failures", b.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// recordRequest counts a dispatch.
func (b *HTTPBackend) recordRequest(success bool) {
	b.healthMu.Lock()
	b.health.TotalRequests++
	if !success {
		b.health.FailedRequests++
	}
	b.healthMu.Unlock()
}

// StartHealthChecker starts a background goroutine that probes the backend
// every HealthCheckInterval until ctx is cancelled or Close is called. While
// the backend is unhealthy the interval backs off exponentially.
func (b *HTTPBackend) StartHealthChecker(ctx context.Context) {
	b.startOnce.Do(func() {
		b.healthMu.Lock()
		b.started = true
		b.healthMu.Unlock()
		go b.runHealthChecker(ctx)
	})
}

func (b *HTTPBackend) runHealthChecker(ctx context.Context) {
	defer close(b.healthCheckStopped)

	interval := b.config.HealthCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info("health checker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopHealthCheck:
			return
		case <-ticker.C:
			err := b.probe(ctx)
			b.updateHealth(err == nil, err)
			if err != nil {
				b.logger.Error("health check failed", "error", err)
			}

			health := b.Health()
			if !health.Healthy {
				ticker.Reset(calculateBackoff(health.ConsecutiveFailures, interval))
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

// HealthCheck performs a synchronous probe and records its outcome.
func (b *HTTPBackend) HealthCheck(ctx context.Context) error {
	err := b.probe(ctx)
	b.updateHealth(err == nil, err)
	return err
}

// probe issues a GET against the health path. Any status below 500 counts as
// reachable: an unauthenticated probe is expected to be rejected.
func (b *HTTPBackend) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpointURL(b.config.HealthCheckPath), nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return b.classifyDoError(ctx, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// calculateBackoff calculates the probe interval after consecutive failures.
// It uses exponential backoff capped at 10x the base interval and 5 minutes.
func calculateBackoff(consecutiveFailures int, baseInterval time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return baseInterval
	}
	multiplier := 10
	if consecutiveFailures < 4 {
		multiplier = 1 << uint(consecutiveFailures)
	}
	backoff := baseInterval * time.Duration(multiplier)
	if maxBackoff := 5 * time.Minute; backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
