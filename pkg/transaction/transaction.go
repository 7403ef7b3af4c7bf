package transaction

import (
	"strings"

	"github.com/google/uuid"
)

// Well-known side-data keys written by the built-in policies.
const (
	KeyCallOrder     = "call_order"
	KeyCallerID      = "caller_id"
	KeyCallerTeam    = "caller_team"
	KeyModelOriginal = "model_original"
	KeyModelMapped   = "model_mapped"
	KeySecretTypes   = "secret_types"
	KeyBackendStatus = "backend_status"
)

// Transaction is the mutable record for a single gateway call.
type Transaction struct {
	// ID uniquely identifies the call. It is attached to every log line
	// produced while the transaction is in flight.
	ID string

	// Request is the inbound call. Nil when the pipeline runs without one
	// (for example in post-response evaluation).
	Request *Request

	// Response is the backend response. Nil until a dispatch policy fills it.
	Response *Response

	// Data is the typed side channel used for inter-policy signaling.
	Data SideData
}

// Request is the inbound chat-completion call.
type Request struct {
	// Method is the HTTP method of the inbound call.
	Method string

	// Endpoint is the API path requested by the caller (e.g. "/v1/chat/completions").
	Endpoint string

	// Credential is the bearer credential carried by the request. Before
	// authentication it holds the caller's key; credential injection replaces
	// it with the backend key.
	Credential string

	// Headers holds the request headers (single-valued).
	Headers map[string]string

	// Payload is the decoded JSON body.
	Payload map[string]any
}

// Response is the structured backend response.
type Response struct {
	// Endpoint is the backend endpoint that produced the response.
	Endpoint string

	// Payload is the decoded JSON response body.
	Payload map[string]any
}

// New creates a transaction with a fresh ID for the given request.
func New(req *Request) *Transaction {
	return &Transaction{
		ID:      uuid.NewString(),
		Request: req,
		Data:    make(SideData),
	}
}

// Header returns a request header value using case-insensitive matching.
func (r *Request) Header(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader sets a request header, replacing any existing entry whose name
// matches case-insensitively.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.DelHeader(name)
	r.Headers[name] = value
}

// DelHeader removes every header whose name matches case-insensitively.
func (r *Request) DelHeader(name string) {
	for k := range r.Headers {
		if strings.EqualFold(k, name) {
			delete(r.Headers, k)
		}
	}
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := &Transaction{ID: t.ID}
	if t.Request != nil {
		req := *t.Request
		if t.Request.Headers != nil {
			req.Headers = make(map[string]string, len(t.Request.Headers))
			for k, v := range t.Request.Headers {
				req.Headers[k] = v
			}
		}
		req.Payload = cloneMap(t.Request.Payload)
		out.Request = &req
	}
	if t.Response != nil {
		out.Response = &Response{
			Endpoint: t.Response.Endpoint,
			Payload:  cloneMap(t.Response.Payload),
		}
	}
	if t.Data != nil {
		out.Data = make(SideData, len(t.Data))
		for k, v := range t.Data {
			out.Data[k] = v.clone()
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
