package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys.
const (
	AttrPolicyName    = attribute.Key("sluice.policy.name")
	AttrPolicyKind    = attribute.Key("sluice.policy.kind")
	AttrTransactionID = attribute.Key("sluice.transaction.id")
	AttrErrorKind     = attribute.Key("sluice.error.kind")
	AttrModel         = attribute.Key("sluice.model")
	AttrHTTPMethod    = attribute.Key("http.request.method")
	AttrHTTPRoute     = attribute.Key("http.route")
	AttrHTTPStatus    = attribute.Key("http.response.status_code")
)
