package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/transaction"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBackend(t *testing.T, url string, mutate func(*BackendConfig)) *HTTPBackend {
	t.Helper()
	cfg := BackendConfig{Name: "test", BaseURL: url, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := NewHTTPBackend(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewHTTPBackend() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func chatRequest() control.BackendRequest {
	return control.BackendRequest{
		Endpoint:   "/v1/chat/completions",
		Credential: "sk-backend",
		Headers:    map[string]string{"X-Request-Id": "req-1", "Content-Length": "999"},
		Payload: map[string]any{
			"model":    "gpt-4o",
			"messages": []any{map[string]any{"role": "user", "content": "hi"}},
		},
	}
}

func TestHTTPBackend_DispatchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-backend" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Request-Id"); got != "req-1" {
			t.Errorf("X-Request-Id = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["model"] != "gpt-4o" {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL+"/v1", nil)
	resp, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.Payload["id"] != "chatcmpl-1" {
		t.Errorf("payload = %v", resp.Payload)
	}
	if resp.Endpoint != "/v1/chat/completions" {
		t.Errorf("Endpoint = %q", resp.Endpoint)
	}
	if h := b.Health(); h.TotalRequests != 1 || h.FailedRequests != 0 {
		t.Errorf("health counters = %+v", h)
	}
}

func TestHTTPBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		header     map[string]string
		wantReason control.TransportReason
		check      func(t *testing.T, err error)
	}{
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error":"bad key"}`,
			wantReason: control.ReasonProtocol,
			check: func(t *testing.T, err error) {
				var auth *AuthError
				if !errors.As(err, &auth) || auth.HTTPStatus() != 401 {
					t.Errorf("error = %v, want *AuthError(401)", err)
				}
			},
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			header:     map[string]string{"Retry-After": "2"},
			wantReason: control.ReasonUnavailable,
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) || rl.RetryAfter != 2*time.Second {
					t.Errorf("error = %v, want *RateLimitError retry after 2s", err)
				}
			},
		},
		{
			name:       "bad request",
			status:     http.StatusBadRequest,
			wantReason: control.ReasonProtocol,
		},
		{
			name:       "service unavailable",
			status:     http.StatusServiceUnavailable,
			wantReason: control.ReasonUnavailable,
		},
		{
			name:       "internal error",
			status:     http.StatusInternalServerError,
			wantReason: control.ReasonProtocol,
		},
		{
			name:       "malformed json",
			status:     http.StatusOK,
			body:       `not json`,
			wantReason: control.ReasonProtocol,
			check: func(t *testing.T, err error) {
				var pe *ParseError
				if !errors.As(err, &pe) || pe.RawResponse != "not json" {
					t.Errorf("error = %v, want *ParseError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			b := newTestBackend(t, server.URL, nil)
			_, err := b.Dispatch(context.Background(), chatRequest())
			var failure control.TransportFailure
			if !errors.As(err, &failure) {
				t.Fatalf("Dispatch() error = %v, want a TransportFailure", err)
			}
			if failure.TransportReason() != tt.wantReason {
				t.Errorf("reason = %s, want %s", failure.TransportReason(), tt.wantReason)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestHTTPBackend_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, func(c *BackendConfig) { c.Timeout = 50 * time.Millisecond })
	_, err := b.Dispatch(context.Background(), chatRequest())
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Dispatch() error = %v, want *TimeoutError", err)
	}
	if te.TransportReason() != control.ReasonTimeout {
		t.Errorf("reason = %s", te.TransportReason())
	}
}

func TestHTTPBackend_CallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Dispatch(ctx, chatRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	var failure control.TransportFailure
	if errors.As(err, &failure) {
		t.Errorf("cancellation reported as transport failure %T", err)
	}
}

func TestHTTPBackend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	b := newTestBackend(t, url, nil)
	_, err := b.Dispatch(context.Background(), chatRequest())
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Dispatch() error = %v, want *ConnectionError", err)
	}
}

func TestHTTPBackend_CircuitBreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, func(c *BackendConfig) {
		c.Breaker = BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}
	})

	for i := 0; i < 2; i++ {
		_, err := b.Dispatch(context.Background(), chatRequest())
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("call %d: error = %v, want *StatusError", i, err)
		}
	}

	_, err := b.Dispatch(context.Background(), chatRequest())
	var open *CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("error = %v, want *CircuitOpenError", err)
	}
	if open.TransportReason() != control.ReasonUnavailable {
		t.Errorf("reason = %s", open.TransportReason())
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("backend hit %d times, want 2", got)
	}
	if b.BreakerState() != "open" {
		t.Errorf("BreakerState() = %s, want open", b.BreakerState())
	}
}

func TestHTTPBackend_BreakerIgnoresClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, func(c *BackendConfig) {
		c.Breaker = BreakerConfig{FailureThreshold: 1}
	})
	for i := 0; i < 3; i++ {
		b.Dispatch(context.Background(), chatRequest())
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("backend hit %d times, want 3", got)
	}
	if b.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %s, want closed", b.BreakerState())
	}
}

func TestHTTPBackend_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, func(c *BackendConfig) {
		c.RateLimit = 0.001
		c.Burst = 1
	})
	if _, err := b.Dispatch(context.Background(), chatRequest()); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	_, err := b.Dispatch(context.Background(), chatRequest())
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("second Dispatch() error = %v, want *TimeoutError from the limiter", err)
	}
}

func TestHTTPBackend_ThroughDispatchPolicy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	b := newTestBackend(t, server.URL, nil)
	tx := transaction.New(&transaction.Request{
		Method:   "POST",
		Endpoint: "/v1/chat/completions",
		Payload:  map[string]any{"model": "gpt-4o"},
	})
	env := &control.Env{Backend: b, Logger: quietLogger()}

	_, err := control.Apply(context.Background(), control.NewDispatchToBackend(""), tx, env)
	var terr *control.UpstreamTransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Apply() error = %v, want *control.UpstreamTransportError", err)
	}
	if terr.Reason != control.ReasonUnavailable || terr.StatusCode != 503 {
		t.Errorf("reason = %s status = %d, want unavailable 503", terr.Reason, terr.StatusCode)
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base, endpoint, want string
	}{
		{"https://api.example.com/v1", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1", "models", "https://api.example.com/v1/models"},
		{"https://api.example.com", "", "https://api.example.com"},
	}
	for _, tt := range tests {
		b := &HTTPBackend{config: BackendConfig{BaseURL: tt.base}}
		if got := b.endpointURL(tt.endpoint); got != tt.want {
			t.Errorf("endpointURL(%q, %q) = %q, want %q", tt.base, tt.endpoint, got, tt.want)
		}
	}
}

func TestBackendConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr string
	}{
		{name: "valid", cfg: BackendConfig{BaseURL: "https://api.openai.com/v1"}},
		{name: "missing url", cfg: BackendConfig{}, wantErr: "base_url"},
		{name: "relative url", cfg: BackendConfig{BaseURL: "/v1"}, wantErr: "base_url"},
		{name: "bad scheme", cfg: BackendConfig{BaseURL: "ftp://host"}, wantErr: "base_url"},
		{name: "negative rate", cfg: BackendConfig{BaseURL: "http://host", RateLimit: -1}, wantErr: "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.wantErr {
				t.Errorf("Validate() error = %v, want ConfigError on %s", err, tt.wantErr)
			}
		})
	}
}
