package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mercator-hq/sluice/pkg/providers"
	"mercator-hq/sluice/pkg/source"
	"mercator-hq/sluice/pkg/telemetry/health"
)

// PolicyCheck reports whether src has a root policy installed.
func PolicyCheck(src source.Source) health.CheckFunc {
	return func(context.Context) (map[string]string, error) {
		snap, ok := src.Snapshot()
		if !ok {
			return nil, errors.New("no policy loaded")
		}
		return map[string]string{
			"revision":  snap.Revision,
			"root":      snap.Policy.Name(),
			"loaded_at": snap.LoadedAt.UTC().Format(time.RFC3339),
		}, nil
	}
}

// BackendCheck reports the backend's passive health and breaker state.
func BackendCheck(b *providers.HTTPBackend) health.CheckFunc {
	return func(context.Context) (map[string]string, error) {
		h := b.Health()
		details := map[string]string{
			"backend":              b.Name(),
			"breaker":              b.BreakerState(),
			"consecutive_failures": strconv.Itoa(h.ConsecutiveFailures),
		}
		if b.BreakerState() == "open" {
			return details, fmt.Errorf("circuit breaker open")
		}
		if !h.Healthy {
			if h.LastError != nil {
				return details, fmt.Errorf("backend unhealthy: %w", h.LastError)
			}
			return details, errors.New("backend unhealthy")
		}
		return details, nil
	}
}
