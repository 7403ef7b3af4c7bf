package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/sluice/pkg/control"
)

// ErrorResponse is an OpenAI-compatible error body, so client SDKs surface
// gateway failures the same way as provider failures.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param names the offending request parameter, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes.
const (
	CodeInvalidJSON         = "invalid_json"
	CodeRequestTooLarge     = "request_too_large"
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeInvalidCredential   = "invalid_api_key"
	CodeContentPolicy       = "content_policy_violation"
	CodeProviderError       = "provider_error"
	CodeProviderTimeout     = "provider_timeout"
	CodeProviderUnavailable = "provider_unavailable"
	CodeRateLimited         = "provider_rate_limited"
	CodeNoPolicy            = "policy_not_loaded"
	CodeMisconfigured       = "gateway_misconfigured"
	CodeCanceled            = "request_canceled"
	CodeInternalError       = "internal_error"
)

// statusClientClosedRequest is reported in metrics and logs when the caller
// goes away mid-call. Nothing is written to the connection in that case.
const statusClientClosedRequest = 499

func newError(message, errorType, code string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Message: message, Type: errorType, Code: code}}
}

// errorFor converts a pipeline error into an HTTP status and wire error.
// Messages never echo request content or credentials.
func errorFor(err error) (int, *ErrorResponse) {
	if errors.Is(err, context.Canceled) {
		return statusClientClosedRequest, newError("request canceled", ErrorTypeInvalidRequest, CodeCanceled)
	}

	switch control.KindOf(err) {
	case control.KindAuthentication:
		return http.StatusUnauthorized, newError(
			"Invalid or inactive API key.", ErrorTypeAuthentication, CodeInvalidCredential)

	case control.KindContentPolicy:
		msg := "Request rejected by content policy."
		var violation *control.ContentPolicyViolation
		if errors.As(err, &violation) && violation.Reason != "" {
			msg = "Request rejected by content policy: " + violation.Reason + "."
		}
		return http.StatusBadRequest, newError(msg, ErrorTypeInvalidRequest, CodeContentPolicy)

	case control.KindUpstreamTransport:
		var terr *control.UpstreamTransportError
		errors.As(err, &terr)
		switch {
		case terr != nil && terr.Reason == control.ReasonTimeout:
			return http.StatusGatewayTimeout, newError(
				"The backend did not respond in time.", ErrorTypeGatewayTimeout, CodeProviderTimeout)
		case terr != nil && terr.StatusCode == http.StatusTooManyRequests:
			return http.StatusTooManyRequests, newError(
				"The backend is rate limiting requests.", ErrorTypeRateLimitExceeded, CodeRateLimited)
		case terr != nil && terr.Reason == control.ReasonUnavailable:
			return http.StatusServiceUnavailable, newError(
				"The backend is unavailable.", ErrorTypeServiceUnavailable, CodeProviderUnavailable)
		default:
			return http.StatusBadGateway, newError(
				"The backend request failed.", ErrorTypeBadGateway, CodeProviderError)
		}

	case control.KindConfiguration, control.KindPolicyLoad:
		return http.StatusInternalServerError, newError(
			"The gateway is misconfigured.", ErrorTypeServerError, CodeMisconfigured)

	default:
		return http.StatusInternalServerError, newError(
			"An internal error occurred.", ErrorTypeServerError, CodeInternalError)
	}
}

// errorKind labels err for metrics and logs.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return control.KindOf(err).String()
}

// writeError writes resp as JSON with the given status.
func writeError(w http.ResponseWriter, status int, resp *ErrorResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
