package control

import (
	"context"
	"errors"
	"net"
	"strings"

	"mercator-hq/sluice/pkg/transaction"
)

// DispatchToBackend sends the finalized request to the backend client and
// stores the structured response on the transaction.
type DispatchToBackend struct {
	// endpoint overrides the request endpoint when set.
	endpoint string
}

// NewDispatchToBackend creates the policy. An empty endpoint forwards to the
// request's own endpoint.
func NewDispatchToBackend(endpoint string) *DispatchToBackend {
	return &DispatchToBackend{endpoint: endpoint}
}

// Name implements Policy.
func (d *DispatchToBackend) Name() string { return KindDispatchToBackend.String() }

// Kind implements Policy.
func (d *DispatchToBackend) Kind() Kind { return KindDispatchToBackend }

// Document implements Policy.
func (d *DispatchToBackend) Document() Document {
	if d.endpoint == "" {
		return document(KindDispatchToBackend, nil)
	}
	return document(KindDispatchToBackend, Document{"endpoint": d.endpoint})
}

// Apply implements Policy.
func (d *DispatchToBackend) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if env.Backend == nil {
		err := &ConfigurationError{Policy: d.Name(), Setting: "backend", Message: "no backend client configured"}
		env.logFailure(ctx, d, t, err)
		return t, err
	}
	if t.Request == nil {
		err := &ConfigurationError{Policy: d.Name(), Message: "no request to dispatch"}
		env.logFailure(ctx, d, t, err)
		return t, err
	}

	endpoint := d.endpoint
	if endpoint == "" {
		endpoint = t.Request.Endpoint
	}
	resp, err := env.Backend.Dispatch(ctx, backendRequest(endpoint, t.Request))
	if err != nil {
		// Cancellation by the caller is not a backend failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return t, err
		}
		terr := classifyTransport(d.Name(), endpoint, err)
		env.logFailure(ctx, d, t, terr)
		return t, terr
	}

	if resp.Endpoint == "" {
		resp.Endpoint = endpoint
	}
	t.Response = &transaction.Response{Endpoint: resp.Endpoint, Payload: resp.Payload}
	if resp.StatusCode > 0 {
		sideData(t).Set(transaction.KeyBackendStatus, transaction.Number(float64(resp.StatusCode)))
	}
	return t, nil
}

// classifyTransport converts a backend client error into an
// UpstreamTransportError.
func classifyTransport(policy, endpoint string, err error) *UpstreamTransportError {
	var existing *UpstreamTransportError
	if errors.As(err, &existing) {
		if existing.Policy != "" {
			return existing
		}
		// The client's error value may be shared; annotate a copy.
		annotated := *existing
		annotated.Policy = policy
		return &annotated
	}

	terr := &UpstreamTransportError{Policy: policy, Endpoint: endpoint, Cause: err}
	var failure TransportFailure
	var netErr net.Error
	switch {
	case errors.As(err, &failure):
		terr.Reason = failure.TransportReason()
		var coded interface{ HTTPStatus() int }
		if errors.As(err, &coded) {
			terr.StatusCode = coded.HTTPStatus()
		}
	case errors.Is(err, context.DeadlineExceeded):
		terr.Reason = ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		terr.Reason = ReasonTimeout
	case errors.As(err, &netErr):
		terr.Reason = ReasonConnection
	default:
		terr.Reason = ReasonProtocol
	}
	return terr
}

func backendRequest(endpoint string, req *transaction.Request) BackendRequest {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		headers[k] = v
	}
	return BackendRequest{
		Endpoint:   endpoint,
		Credential: req.Credential,
		Headers:    headers,
		Payload:    req.Payload,
	}
}

func loadDispatchToBackend(_ *Loader, config Document) (Policy, error) {
	endpoint, err := optionalString(config, "endpoint")
	if err != nil {
		return nil, err
	}
	return NewDispatchToBackend(endpoint), nil
}
