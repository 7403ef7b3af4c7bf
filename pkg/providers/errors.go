package providers

import (
	"fmt"
	"time"

	"mercator-hq/sluice/pkg/control"
)

// The dispatch errors below implement control.TransportFailure so that
// DispatchToBackend reports them with the right reason. Those carrying an HTTP
// status also expose HTTPStatus.

// StatusError represents a non-success HTTP status from the backend.
type StatusError struct {
	// Backend is the name of the backend that returned the error
	Backend string

	// StatusCode is the HTTP status code
	StatusCode int

	// Message is the response body (truncated)
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %q error (status %d): %s", e.Backend, e.StatusCode, e.Message)
}

// TransportReason implements control.TransportFailure.
func (e *StatusError) TransportReason() control.TransportReason {
	if e.StatusCode == 502 || e.StatusCode == 503 || e.StatusCode == 504 {
		return control.ReasonUnavailable
	}
	return control.ReasonProtocol
}

// HTTPStatus returns the backend status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// AuthError represents the backend rejecting the injected credential
// (HTTP 401 or 403).
type AuthError struct {
	// Backend is the name of the backend that rejected authentication
	Backend string

	// StatusCode is 401 or 403
	StatusCode int

	// Message is the error message from the backend
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("backend %q rejected credential: %s", e.Backend, e.Message)
}

// TransportReason implements control.TransportFailure.
func (e *AuthError) TransportReason() control.TransportReason { return control.ReasonProtocol }

// HTTPStatus returns the backend status code.
func (e *AuthError) HTTPStatus() int { return e.StatusCode }

// RateLimitError represents the backend throttling the gateway (HTTP 429).
type RateLimitError struct {
	// Backend is the name of the backend that rate limited the request
	Backend string

	// RetryAfter is the duration to wait before retrying (if provided)
	RetryAfter time.Duration

	// Message is the error message from the backend
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("backend %q rate limit exceeded (retry after %s): %s",
			e.Backend, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("backend %q rate limit exceeded: %s", e.Backend, e.Message)
}

// TransportReason implements control.TransportFailure.
func (e *RateLimitError) TransportReason() control.TransportReason {
	return control.ReasonUnavailable
}

// HTTPStatus returns 429.
func (e *RateLimitError) HTTPStatus() int { return 429 }

// TimeoutError represents a dispatch that did not finish in time, either on
// the wire or while waiting for the outbound rate limiter.
type TimeoutError struct {
	// Backend is the name of the backend where the timeout occurred
	Backend string

	// Timeout is the configured timeout duration
	Timeout time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %q request timeout after %s", e.Backend, e.Timeout)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error { return e.Cause }

// TransportReason implements control.TransportFailure.
func (e *TimeoutError) TransportReason() control.TransportReason { return control.ReasonTimeout }

// ConnectionError represents a failure to reach the backend.
type ConnectionError struct {
	Backend string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend %q unreachable: %v", e.Backend, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Cause }

// TransportReason implements control.TransportFailure.
func (e *ConnectionError) TransportReason() control.TransportReason {
	return control.ReasonConnection
}

// ParseError represents a request that could not be encoded or a response
// that could not be decoded.
type ParseError struct {
	// Backend is the name of the backend
	Backend string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("backend %q payload error: %v", e.Backend, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Cause }

// TransportReason implements control.TransportFailure.
func (e *ParseError) TransportReason() control.TransportReason { return control.ReasonProtocol }

// CircuitOpenError is returned without contacting the backend while the
// circuit breaker is open or saturated in the half-open state.
type CircuitOpenError struct {
	Backend string
	State   string
	Cause   error
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("backend %q circuit %s", e.Backend, e.State)
}

// Unwrap returns the underlying gobreaker error.
func (e *CircuitOpenError) Unwrap() error { return e.Cause }

// TransportReason implements control.TransportFailure.
func (e *CircuitOpenError) TransportReason() control.TransportReason {
	return control.ReasonUnavailable
}

// ConfigError represents an invalid backend configuration.
type ConfigError struct {
	// Backend is the name of the backend with invalid configuration
	Backend string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("backend %q configuration error for field %q: %s",
		e.Backend, e.Field, e.Message)
}
