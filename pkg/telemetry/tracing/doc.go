// Package tracing provides OpenTelemetry tracing for the sluice gateway.
//
// A Tracer is a control.Observer: installed on the pipeline Env it opens one
// span per policy application, nested the way the policy tree is nested, and
// marks failed steps with the error kind. HTTPMiddleware continues traces
// arriving with a W3C traceparent header, and Inject forwards the current
// trace to the backend provider.
//
// Spans are exported over OTLP gRPC. Sampling is "always", "never" or
// "ratio", each respecting the parent's decision.
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//	env.Observer = control.Observers{collector, tracer}
package tracing
