package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"mercator-hq/sluice/pkg/transaction"
)

// recorder appends its name to call_order and optionally fails.
type recorder struct {
	name string
	err  error
}

func (r *recorder) Name() string { return r.name }
func (r *recorder) Kind() Kind   { return KindSetData }
func (r *recorder) Document() Document {
	return Document{"type": "recorder", "config": Document{"name": r.name}}
}

func (r *recorder) Apply(_ context.Context, t *transaction.Transaction, _ *Env) (*transaction.Transaction, error) {
	t.Data.Append(transaction.KeyCallOrder, transaction.String(r.name))
	return t, r.err
}

func callOrder(t *transaction.Transaction) []any {
	v, ok := t.Data.Get(transaction.KeyCallOrder)
	if !ok {
		return nil
	}
	return v.Interface().([]any)
}

type staticCredentials struct {
	creds    map[string]Credential
	inactive map[string]bool
	err      error
}

func (s *staticCredentials) Verify(_ context.Context, value string) (Credential, CredentialStatus, error) {
	if s.err != nil {
		return Credential{}, CredentialNotFound, s.err
	}
	c, ok := s.creds[value]
	if !ok {
		return Credential{}, CredentialNotFound, nil
	}
	if s.inactive[value] {
		return c, CredentialInactive, nil
	}
	return c, CredentialActive, nil
}

type staticConfigs map[string]Document

func (s staticConfigs) Fetch(_ context.Context, name string) (Document, error) {
	doc, ok := s[name]
	if !ok {
		return nil, ErrConfigNotFound
	}
	return doc, nil
}

type scriptedBackend struct {
	mu       sync.Mutex
	requests []BackendRequest
	resp     *BackendResponse
	err      error
}

func (b *scriptedBackend) Dispatch(_ context.Context, req BackendRequest) (*BackendResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if b.resp != nil {
		return b.resp, nil
	}
	return &BackendResponse{StatusCode: 200, Payload: map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "hi"}}},
	}}, nil
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

type fakeTransportError struct{ reason TransportReason }

func (e *fakeTransportError) Error() string                    { return "transport: " + string(e.reason) }
func (e *fakeTransportError) TransportReason() TransportReason { return e.reason }
func (e *fakeTransportError) HTTPStatus() int                  { return 503 }

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnv() (*Env, *scriptedBackend) {
	backend := &scriptedBackend{}
	return &Env{
		Credentials: &staticCredentials{
			creds: map[string]Credential{
				"caller-key":   {ID: "user-1", Name: "ci", Team: "search"},
				"disabled-key": {ID: "user-2"},
			},
			inactive: map[string]bool{"disabled-key": true},
		},
		Configs: staticConfigs{
			"openai": {"api_key": "sk-backend"},
			"empty":  {"region": "us"},
		},
		Backend: backend,
		Logger:  discardLogger(),
	}, backend
}

func chatTransaction(credential, content string) *transaction.Transaction {
	return transaction.New(&transaction.Request{
		Method:     "POST",
		Endpoint:   "/v1/chat/completions",
		Credential: credential,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Payload: map[string]any{
			"model": "gpt-4",
			"messages": []any{
				map[string]any{"role": "user", "content": content},
			},
		},
	})
}
