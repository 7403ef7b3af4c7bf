// Package metrics provides Prometheus metrics for the sluice gateway.
//
// # Metrics Categories
//
//   - Request metrics: chat-completion calls by model, status and error kind
//   - Policy metrics: applications by variant and outcome, root reloads
//   - Backend metrics: dispatch latency, status, transport failures, health
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Observe every policy application
//	env.Observer = collector
//
//	// Record backend dispatches
//	env.Backend = collector.InstrumentBackend(backend, "openai")
//
//	// Expose the endpoint
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality Management
//
// Policy applications are labelled by variant, not by configured name. The
// model label comes from client payloads and is capped by a
// CardinalityLimiter; values past the cap are reported as "other".
package metrics
