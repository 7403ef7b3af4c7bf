// Package health aggregates component checks into the gateway's /health
// endpoint.
//
// Components register a CheckFunc as critical or not. The gateway is
// "unhealthy" (503) when a critical check fails, "degraded" (200) when only
// non-critical checks fail, and "ok" otherwise. Checks run concurrently,
// each bounded by the checker's timeout.
package health
