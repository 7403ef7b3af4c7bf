package control

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/sluice/pkg/condition"
)

// ErrorKind classifies pipeline failures for the orchestrator.
type ErrorKind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindAuthentication
	KindContentPolicy
	KindUpstreamTransport
	KindPolicyLoad
)

// String returns the snake_case kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindContentPolicy:
		return "content_policy"
	case KindUpstreamTransport:
		return "upstream_transport"
	case KindPolicyLoad:
		return "policy_load"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAuthentication    = errors.New("authentication error")
	ErrContentPolicy     = errors.New("content policy violation")
	ErrUpstreamTransport = errors.New("upstream transport error")
	ErrPolicyLoad        = errors.New("policy load error")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var classified interface{ Kind() ErrorKind }
	if errors.As(err, &classified) {
		return classified.Kind()
	}
	return KindUnknown
}

// ConfigurationError reports a required setting or credential that is absent.
// It is a server-side failure and is never retried.
type ConfigurationError struct {
	// Policy is the name of the policy that raised the error.
	Policy string

	// Setting names the missing or invalid setting.
	Setting string

	// Message describes the problem.
	Message string

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("policy %s: configuration error", e.Policy)
	if e.Setting != "" {
		msg += fmt.Sprintf(" (%s)", e.Setting)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Kind returns KindConfiguration.
func (e *ConfigurationError) Kind() ErrorKind { return KindConfiguration }

// AuthenticationError reports a missing, unknown or inactive caller credential.
type AuthenticationError struct {
	Policy string
	Reason string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("policy %s: authentication failed: %s", e.Policy, e.Reason)
}

// Is matches ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// Kind returns KindAuthentication.
func (e *AuthenticationError) Kind() ErrorKind { return KindAuthentication }

// ContentPolicyViolation reports request content rejected by a detector. It is
// always raised before the request reaches a backend.
type ContentPolicyViolation struct {
	// Policy is the name of the policy that raised the violation.
	Policy string

	// Reason is a human-readable summary.
	Reason string

	// Findings lists what tripped the detector (e.g. secret types). It never
	// contains the matched content itself.
	Findings []string
}

// Error implements the error interface.
func (e *ContentPolicyViolation) Error() string {
	if len(e.Findings) > 0 {
		return fmt.Sprintf("policy %s: content policy violation: %s [%s]", e.Policy, e.Reason, strings.Join(e.Findings, ", "))
	}
	return fmt.Sprintf("policy %s: content policy violation: %s", e.Policy, e.Reason)
}

// Is matches ErrContentPolicy.
func (e *ContentPolicyViolation) Is(target error) bool { return target == ErrContentPolicy }

// Kind returns KindContentPolicy.
func (e *ContentPolicyViolation) Kind() ErrorKind { return KindContentPolicy }

// TransportReason classifies a backend transport failure.
type TransportReason string

const (
	ReasonTimeout     TransportReason = "timeout"
	ReasonConnection  TransportReason = "connection"
	ReasonProtocol    TransportReason = "protocol"
	ReasonUnavailable TransportReason = "unavailable"
)

// TransportFailure is implemented by backend client errors that know their
// own transport classification.
type TransportFailure interface {
	error
	TransportReason() TransportReason
}

// UpstreamTransportError reports a backend timeout, connection or protocol
// failure. Retrying is left to the orchestrator.
type UpstreamTransportError struct {
	// Policy is the name of the policy that dispatched the request.
	Policy string

	// Endpoint is the backend endpoint that was called.
	Endpoint string

	// Reason classifies the failure.
	Reason TransportReason

	// StatusCode is the backend HTTP status (0 if no response was received).
	StatusCode int

	// Cause is the underlying client error.
	Cause error
}

// Error implements the error interface.
func (e *UpstreamTransportError) Error() string {
	msg := fmt.Sprintf("policy %s: upstream %s failure calling %q", e.Policy, e.Reason, e.Endpoint)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *UpstreamTransportError) Unwrap() error { return e.Cause }

// Is matches ErrUpstreamTransport.
func (e *UpstreamTransportError) Is(target error) bool { return target == ErrUpstreamTransport }

// Kind returns KindUpstreamTransport.
func (e *UpstreamTransportError) Kind() ErrorKind { return KindUpstreamTransport }

// Timeout reports whether the backend timed out.
func (e *UpstreamTransportError) Timeout() bool { return e.Reason == ReasonTimeout }

// LoadError reports a malformed or unknown policy document. Path locates the
// offending node, e.g. "config.policies[1].type".
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Path == "" {
		return "policy load error: " + msg
	}
	return fmt.Sprintf("policy load error at %s: %s", e.Path, msg)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error { return e.Cause }

// Is matches ErrPolicyLoad.
func (e *LoadError) Is(target error) bool { return target == ErrPolicyLoad }

// Kind returns KindPolicyLoad.
func (e *LoadError) Kind() ErrorKind { return KindPolicyLoad }

// nest relocates a load failure under the given document segment. Condition
// load errors keep their relative path.
func nest(err error, segment string) error {
	var le *LoadError
	if errors.As(err, &le) {
		return &LoadError{Path: condition.JoinPath(segment, le.Path), Message: le.Message, Cause: le.Cause}
	}
	var ce *condition.LoadError
	if errors.As(err, &ce) {
		return &LoadError{Path: condition.JoinPath(segment, ce.Path), Message: ce.Message, Cause: ce.Cause}
	}
	return &LoadError{Path: segment, Message: "invalid document", Cause: err}
}
