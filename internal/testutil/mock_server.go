// Package testutil provides fakes shared by the gateway's package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer is an OpenAI-compatible backend for exercising the real HTTP
// dispatch path. Unknown paths answer 404.
type MockServer struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []RecordedRequest
}

// MockResponse defines the reply for one path.
type MockResponse struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
}

// RecordedRequest is what the server saw for one call.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// NewMockServer starts a server. Callers must Close it.
func NewMockServer() *MockServer {
	ms := &MockServer{responses: make(map[string]MockResponse)}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the server's base URL.
func (ms *MockServer) URL() string { return ms.server.URL }

// Close shuts the server down.
func (ms *MockServer) Close() { ms.server.Close() }

// SetResponse sets the reply for path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// Requests returns a copy of the recorded requests.
func (ms *MockServer) Requests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]RecordedRequest(nil), ms.requests...)
}

// RequestCount returns the number of requests received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
	}
	if data, err := io.ReadAll(r.Body); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, rec)
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if response.StatusCode == 0 {
		response.StatusCode = http.StatusOK
	}
	if response.Body == nil {
		w.WriteHeader(response.StatusCode)
		return
	}

	switch v := response.Body.(type) {
	case string:
		w.WriteHeader(response.StatusCode)
		_, _ = io.WriteString(w, v)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(response.StatusCode)
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ChatCompletion returns a minimal chat-completion response body.
func ChatCompletion(model, content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
	}
}
