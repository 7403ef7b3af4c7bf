package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mercator-hq/sluice/pkg/control"
)

// HTTPBackend is a control.BackendClient that POSTs JSON payloads to an
// OpenAI-compatible HTTP API. It provides connection pooling, an optional
// outbound rate limit, an optional circuit breaker and health tracking.
//
// Dispatch never retries: a failed call surfaces to the pipeline as an
// upstream transport error and the caller decides whether to try again.
type HTTPBackend struct {
	// config contains the backend configuration
	config BackendConfig

	// client is the HTTP client with connection pooling
	client *http.Client

	// breaker guards the backend; nil when disabled
	breaker *gobreaker.CircuitBreaker

	// limiter caps outbound requests; nil when disabled
	limiter *rate.Limiter

	logger *slog.Logger

	// health tracks the backend's health status
	health   Health
	healthMu sync.RWMutex

	// stopHealthCheck is closed to signal the health checker to stop
	stopHealthCheck chan struct{}

	// healthCheckStopped is closed when the health checker has stopped
	healthCheckStopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

var _ control.BackendClient = (*HTTPBackend)(nil)

// NewHTTPBackend creates a backend client. Unset configuration fields take
// their defaults; a nil logger selects slog.Default().
func NewHTTPBackend(config BackendConfig, logger *slog.Logger) (*HTTPBackend, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", config.Name)

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	b := &HTTPBackend{
		config: config,
		client: &http.Client{Transport: transport},
		logger: logger,
		health: Health{
			Healthy:   true,
			LastCheck: time.Now(),
		},
		stopHealthCheck:    make(chan struct{}),
		healthCheckStopped: make(chan struct{}),
	}

	if config.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}

	if config.Breaker.FailureThreshold > 0 {
		threshold := config.Breaker.FailureThreshold
		b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        config.Name,
			MaxRequests: config.Breaker.MaxRequests,
			Interval:    config.Breaker.Interval,
			Timeout:     config.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}

	return b, nil
}

// Name returns the configured backend name.
func (b *HTTPBackend) Name() string {
	return b.config.Name
}

// Config returns the effective configuration.
func (b *HTTPBackend) Config() BackendConfig {
	return b.config
}

// BreakerState reports the circuit breaker state ("closed", "half-open",
// "open"), or "disabled" when no breaker is configured.
func (b *HTTPBackend) BreakerState() string {
	if b.breaker == nil {
		return "disabled"
	}
	return b.breaker.State().String()
}

// Dispatch implements control.BackendClient.
func (b *HTTPBackend) Dispatch(ctx context.Context, req control.BackendRequest) (*control.BackendResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, &TimeoutError{Backend: b.config.Name, Timeout: b.config.Timeout, Cause: err}
		}
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, &ParseError{Backend: b.config.Name, Cause: fmt.Errorf("encode request: %w", err)}
	}

	var resp *control.BackendResponse
	if b.breaker == nil {
		resp, err = b.send(ctx, req, body)
	} else {
		var result interface{}
		result, err = b.breaker.Execute(func() (interface{}, error) {
			return b.send(ctx, req, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{Backend: b.config.Name, State: b.breaker.State().String(), Cause: err}
		}
		if err == nil {
			resp = result.(*control.BackendResponse)
		}
	}

	b.recordRequest(err == nil || errors.Is(err, context.Canceled))
	if !errors.Is(err, context.Canceled) {
		ok := countsAsSuccess(err)
		b.updateHealth(ok, err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// send performs one HTTP exchange and classifies its outcome.
func (b *HTTPBackend) send(ctx context.Context, req control.BackendRequest, body []byte) (*control.BackendResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpointURL(req.Endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Backend: b.config.Name, Cause: fmt.Errorf("build request: %w", err)}
	}
	for key, value := range req.Headers {
		if strings.EqualFold(key, "Content-Length") || strings.EqualFold(key, "Host") {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	b.logger.Debug("sending request to backend",
		"endpoint", req.Endpoint,
	)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, b.classifyDoError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, b.config.MaxResponseBytes))
	if err != nil {
		return nil, b.classifyDoError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, b.statusError(resp, raw)
	}

	payload := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &ParseError{
				Backend:     b.config.Name,
				RawResponse: truncate(string(raw), 512),
				Cause:       fmt.Errorf("decode response: %w", err),
			}
		}
	}

	return &control.BackendResponse{
		Endpoint:   req.Endpoint,
		StatusCode: resp.StatusCode,
		Payload:    payload,
	}, nil
}

func (b *HTTPBackend) classifyDoError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Backend: b.config.Name, Timeout: b.config.Timeout, Cause: err}
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return &TimeoutError{Backend: b.config.Name, Timeout: b.config.Timeout, Cause: err}
	}
	return &ConnectionError{Backend: b.config.Name, Cause: err}
}

func (b *HTTPBackend) statusError(resp *http.Response, raw []byte) error {
	msg := truncate(strings.TrimSpace(string(raw)), 512)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Backend: b.config.Name, StatusCode: resp.StatusCode, Message: msg}
	case http.StatusTooManyRequests:
		return &RateLimitError{
			Backend:    b.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	default:
		return &StatusError{Backend: b.config.Name, StatusCode: resp.StatusCode, Message: msg}
	}
}

func (b *HTTPBackend) endpointURL(endpoint string) string {
	base := strings.TrimRight(b.config.BaseURL, "/")
	if endpoint == "" {
		return base
	}
	// BaseURL commonly ends in /v1 while endpoints carry it too.
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(endpoint, "/v1/") {
		endpoint = strings.TrimPrefix(endpoint, "/v1")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// Close stops the health checker and releases idle connections.
func (b *HTTPBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopHealthCheck)
		b.healthMu.RLock()
		started := b.started
		b.healthMu.RUnlock()
		if started {
			select {
			case <-b.healthCheckStopped:
			case <-time.After(5 * time.Second):
				b.logger.Warn("health checker did not stop in time")
			}
		}
		b.client.CloseIdleConnections()
		b.logger.Info("backend closed")
	})
	return nil
}

// countsAsSuccess decides which outcomes the breaker treats as healthy.
// Caller cancellation and client-side rejections say nothing about the
// backend's availability.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode < 500
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
