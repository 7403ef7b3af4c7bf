package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CheckFunc checks one component. It returns details worth reporting (such
// as a revision or breaker state) and a non-nil error when the component is
// unhealthy.
type CheckFunc func(ctx context.Context) (map[string]string, error)

// Status values.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Critical marks checks whose failure makes the gateway unhealthy.
	Critical bool `json:"critical"`

	// Message describes the failure.
	Message string `json:"message,omitempty"`

	// Details carries component-specific information.
	Details map[string]string `json:"details,omitempty"`

	// DurationMs is how long the check took.
	DurationMs float64 `json:"duration_ms"`
}

// HealthStatus represents the overall health of the gateway.
type HealthStatus struct {
	// Status is "ok", "degraded" (a non-critical check failed) or
	// "unhealthy" (a critical check failed).
	Status string `json:"status"`

	// Version is the running build.
	Version string `json:"version,omitempty"`

	// Checks holds the result of every registered check.
	Checks map[string]CheckResult `json:"checks"`

	// Timestamp is when the checks ran.
	Timestamp time.Time `json:"timestamp"`
}

type registeredCheck struct {
	fn       CheckFunc
	critical bool
}

// Checker runs registered component checks concurrently.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registeredCheck

	version      string
	checkTimeout time.Duration
}

// New creates a checker. If timeout is 0, each check gets 5 seconds.
func New(version string, checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]registeredCheck),
		version:      version,
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers a check, replacing any check of the same name.
func (c *Checker) RegisterCheck(name string, critical bool, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: check, critical: critical}
}

// ListChecks returns the registered check names in order.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every registered check and aggregates the result.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check registeredCheck) {
			defer wg.Done()
			result := c.runCheck(ctx, check)
			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusOK
	for _, result := range results {
		if result.Status == StatusOK {
			continue
		}
		if result.Critical {
			status = StatusUnhealthy
		} else if status == StatusOK {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Version:   c.version,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single check with the checker's timeout.
func (c *Checker) runCheck(ctx context.Context, check registeredCheck) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		details map[string]string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		details, err := check.fn(checkCtx)
		done <- outcome{details, err}
	}()

	result := CheckResult{Critical: check.critical}
	select {
	case out := <-done:
		result.Details = out.details
		if out.err != nil {
			result.Status = StatusUnhealthy
			result.Message = out.err.Error()
		} else {
			result.Status = StatusOK
		}
	case <-checkCtx.Done():
		result.Status = StatusUnhealthy
		result.Message = "health check timeout"
	}
	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	return result
}
