package testutil

import (
	"context"
	"sync"

	"mercator-hq/sluice/pkg/control"
)

// ScriptedBackend is an in-process control.BackendClient. Each Dispatch
// consumes the next scripted reply; the last reply repeats.
type ScriptedBackend struct {
	mu      sync.Mutex
	replies []Reply
	calls   []control.BackendRequest
}

// Reply is one scripted dispatch outcome.
type Reply struct {
	Response *control.BackendResponse
	Err      error
}

// NewScriptedBackend returns a backend that replays replies in order.
func NewScriptedBackend(replies ...Reply) *ScriptedBackend {
	return &ScriptedBackend{replies: replies}
}

// Echo returns a backend that answers every call with a chat completion for
// the requested model.
func Echo() *ScriptedBackend {
	return &ScriptedBackend{}
}

// Dispatch implements control.BackendClient.
func (b *ScriptedBackend) Dispatch(ctx context.Context, req control.BackendRequest) (*control.BackendResponse, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	var reply Reply
	switch n := len(b.replies); {
	case n == 0:
		model, _ := req.Payload["model"].(string)
		reply.Response = &control.BackendResponse{StatusCode: 200, Payload: ChatCompletion(model, "ok")}
	case len(b.calls) <= n:
		reply = b.replies[len(b.calls)-1]
	default:
		reply = b.replies[n-1]
	}
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	resp := *reply.Response
	if resp.Endpoint == "" {
		resp.Endpoint = req.Endpoint
	}
	return &resp, nil
}

// Calls returns a copy of the dispatched requests.
func (b *ScriptedBackend) Calls() []control.BackendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]control.BackendRequest(nil), b.calls...)
}
