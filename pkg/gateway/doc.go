// Package gateway is the HTTP front of sluice.
//
// A call to POST /v1/chat/completions becomes a transaction: the JSON body
// is the request payload and the bearer token is the request credential. The
// handler runs the transaction through the root policy supplied by a
// source.Source and writes the backend response, or converts the failure
// into an OpenAI-compatible error:
//
//	authentication      401 authentication_error
//	content policy      400 invalid_request_error (content_policy_violation)
//	upstream timeout    504 gateway_timeout
//	upstream 429        429 rate_limit_exceeded
//	upstream unavailable 503 service_unavailable
//	other upstream      502 bad_gateway
//	configuration       500 server_error
//
// The server also exposes the health endpoint, build information and, when
// enabled, Prometheus metrics.
package gateway
