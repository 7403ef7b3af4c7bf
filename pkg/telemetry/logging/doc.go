// Package logging builds the gateway's slog.Logger.
//
// New returns a JSON or text logger at the configured level. Records logged
// with a context carrying a request ID (see WithRequestID) gain a request_id
// attribute. With RedactSecrets set, a RedactingHandler masks API keys,
// bearer tokens and password fields, and replaces values under keys such as
// "api_key" or "authorization" with a short prefix.
package logging
