package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/sluice/internal/testutil"
	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/store"
)

const (
	callerKey  = "sl-caller-0123456789"
	backendKey = "sk-backend-0123456789"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCredentials returns a store holding one active and one inactive key.
func testCredentials(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	if err := s.AddKey(ctx, callerKey, store.KeyRecord{ID: "alice", Name: "alice", Team: "research", Active: true}); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	if err := s.AddKey(ctx, "sl-revoked-0123456789", store.KeyRecord{ID: "bob", Name: "bob", Active: false}); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	return s
}

// standardPipeline authenticates, scans for secrets, remaps and dispatches.
func standardPipeline() control.Policy {
	secrets, err := control.NewScanForLeakedSecrets(nil)
	if err != nil {
		panic(err)
	}
	return control.NewSerial("root",
		control.NewAuthenticateCaller(),
		secrets,
		control.NewRemapModel(map[string]string{"fast": "gpt-4o-mini"}),
		control.NewInjectBackendCredential(backendKey, ""),
		control.NewDispatchToBackend(""),
	)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = "https://api.example.com/v1"
	cfg.Gateway.MaxBodyBytes = 1024
	return cfg
}

func chatRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, ChatCompletionsPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req
}

var _ control.BackendClient = (*testutil.ScriptedBackend)(nil)

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func mustRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
