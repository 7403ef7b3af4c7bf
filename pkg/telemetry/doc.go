// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog construction, request-scoped attributes, secret redaction
//   - metrics: Prometheus collectors for requests, policy applications and
//     backend dispatches
//   - tracing: OpenTelemetry spans per policy application
//   - health: component checks behind the /health endpoint
//
// The metrics collector and the tracer both implement control.Observer and
// are combined with control.Observers when the gateway builds its Env.
package telemetry
