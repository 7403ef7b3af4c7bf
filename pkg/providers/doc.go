// Package providers implements the backend client used by DispatchToBackend.
//
// # Overview
//
// HTTPBackend satisfies control.BackendClient. It POSTs the finalized request
// payload as JSON to an OpenAI-compatible API, attaching the injected backend
// credential as a bearer token, and decodes the JSON reply.
//
// # Failure Classification
//
// Every failure is returned as a typed error implementing
// control.TransportFailure, so the dispatch policy can report it as an
// upstream transport error with a reason:
//
//   - TimeoutError: deadline exceeded on the wire or in the rate limiter (timeout)
//   - ConnectionError: the backend could not be reached (connection)
//   - StatusError, AuthError, ParseError: the backend answered badly (protocol)
//   - RateLimitError, CircuitOpenError, 502/503/504: backend unavailable (unavailable)
//
// Caller cancellation is returned as context.Canceled, unwrapped.
//
// # Resilience
//
// A gobreaker circuit breaker opens after Breaker.FailureThreshold
// consecutive backend failures and fails fast until Breaker.Timeout elapses.
// Client-side rejections (4xx other than 429) and caller cancellation do not
// count as failures. An x/time/rate limiter caps outbound requests when
// RateLimit is set.
//
// # Basic Usage
//
//	backend, err := providers.NewHTTPBackend(providers.BackendConfig{
//	    Name:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    Timeout: 60 * time.Second,
//	    Breaker: providers.BreakerConfig{FailureThreshold: 5},
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//	backend.StartHealthChecker(ctx)
//
//	env := &control.Env{Backend: backend}
//
// # Thread Safety
//
// HTTPBackend is safe for concurrent use.
package providers
