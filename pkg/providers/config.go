package providers

import (
	"net/url"
	"time"
)

// BackendConfig configures an HTTPBackend.
type BackendConfig struct {
	// Name identifies the backend in logs, metrics and errors (e.g. "openai").
	Name string

	// BaseURL is the provider API root; request endpoints are appended to it.
	BaseURL string

	// Timeout bounds a single dispatch, including reading the response.
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration

	// HealthCheckInterval is how often the health checker probes the backend.
	HealthCheckInterval time.Duration

	// HealthCheckPath is appended to BaseURL for health probes.
	HealthCheckPath string

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter's bucket size. Defaults to 1 when RateLimit is set.
	Burst int

	// MaxResponseBytes bounds the response body read from the backend.
	MaxResponseBytes int64

	// Breaker configures the circuit breaker in front of the backend.
	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	FailureThreshold uint32

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period in which closed-state counts are cleared.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
}

const (
	defaultTimeout             = 60 * time.Second
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultHealthCheckPath     = "/models"
	defaultMaxResponseBytes    = 10 << 20
	defaultBreakerMaxRequests  = 1
	defaultBreakerTimeout      = 30 * time.Second
)

// ApplyDefaults fills unset fields with their defaults.
func (c *BackendConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "backend"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = defaultIdleConnTimeout
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = defaultHealthCheckPath
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	if c.RateLimit > 0 && c.Burst == 0 {
		c.Burst = 1
	}
	if c.Breaker.FailureThreshold > 0 {
		if c.Breaker.MaxRequests == 0 {
			c.Breaker.MaxRequests = defaultBreakerMaxRequests
		}
		if c.Breaker.Timeout == 0 {
			c.Breaker.Timeout = defaultBreakerTimeout
		}
	}
}

// Validate checks the configuration for errors.
func (c *BackendConfig) Validate() error {
	if c.BaseURL == "" {
		return &ConfigError{Backend: c.Name, Field: "base_url", Message: "is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{Backend: c.Name, Field: "base_url", Message: "must be an absolute http(s) URL"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Backend: c.Name, Field: "timeout", Message: "must not be negative"}
	}
	if c.RateLimit < 0 {
		return &ConfigError{Backend: c.Name, Field: "rate_limit", Message: "must not be negative"}
	}
	if c.Burst < 0 {
		return &ConfigError{Backend: c.Name, Field: "burst", Message: "must not be negative"}
	}
	return nil
}
