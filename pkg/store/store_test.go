package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/transaction"
)

// storeFactories returns the implementations under test. The Redis store is
// exercised only when SLUICE_TEST_REDIS_ADDR names a reachable server.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sluice.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			return s
		},
	}
	if addr := os.Getenv("SLUICE_TEST_REDIS_ADDR"); addr != "" {
		factories["redis"] = func(t *testing.T) Store {
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			if err := rdb.Ping(context.Background()).Err(); err != nil {
				t.Skipf("redis unavailable: %v", err)
			}
			t.Cleanup(func() { rdb.Close() })
			return NewRedisStoreFromClient(rdb, "sluice-test:"+uuid.NewString()+":")
		}
	}
	return factories
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStore_VerifyKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.AddKey(ctx, "sk-live-1", KeyRecord{ID: "user-1", Name: "ci", Team: "search", Active: true}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		if err := s.AddKey(ctx, "sk-off", KeyRecord{ID: "user-2", Name: "old"}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}

		tests := []struct {
			value      string
			wantStatus control.CredentialStatus
			wantID     string
		}{
			{"sk-live-1", control.CredentialActive, "user-1"},
			{"sk-off", control.CredentialInactive, "user-2"},
			{"sk-unknown", control.CredentialNotFound, ""},
			{"", control.CredentialNotFound, ""},
		}
		for _, tt := range tests {
			cred, st, err := s.Verify(ctx, tt.value)
			if err != nil {
				t.Fatalf("Verify(%q) error = %v", tt.value, err)
			}
			if st != tt.wantStatus || cred.ID != tt.wantID {
				t.Errorf("Verify(%q) = %s %q, want %s %q", tt.value, st, cred.ID, tt.wantStatus, tt.wantID)
			}
		}

		cred, _, _ := s.Verify(ctx, "sk-live-1")
		if cred.Team != "search" || cred.Name != "ci" {
			t.Errorf("credential = %+v", cred)
		}
	})
}

func TestStore_KeyAdmin(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.AddKey(ctx, "sk-a", KeyRecord{ID: "a", Name: "A", Active: true}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		if err := s.AddKey(ctx, "sk-a", KeyRecord{ID: "other", Name: "dup value"}); !errors.Is(err, ErrKeyExists) {
			t.Errorf("duplicate value error = %v, want ErrKeyExists", err)
		}
		if err := s.AddKey(ctx, "sk-b", KeyRecord{ID: "a", Name: "dup id"}); !errors.Is(err, ErrKeyExists) {
			t.Errorf("duplicate id error = %v, want ErrKeyExists", err)
		}
		if err := s.AddKey(ctx, "", KeyRecord{ID: "x"}); err == nil {
			t.Error("empty key value accepted")
		}

		if err := s.SetKeyActive(ctx, "a", false); err != nil {
			t.Fatalf("SetKeyActive() error = %v", err)
		}
		if _, st, _ := s.Verify(ctx, "sk-a"); st != control.CredentialInactive {
			t.Errorf("status after revoke = %s", st)
		}
		if err := s.SetKeyActive(ctx, "missing", true); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("SetKeyActive(missing) error = %v, want ErrKeyNotFound", err)
		}

		if err := s.AddKey(ctx, "sk-0", KeyRecord{ID: "0", Name: "zero", Active: true}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		keys, err := s.ListKeys(ctx)
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		var ids []string
		for _, k := range keys {
			ids = append(ids, k.ID)
			if k.CreatedAt.IsZero() {
				t.Errorf("key %s has no creation time", k.ID)
			}
		}
		if want := []string{"0", "a"}; !reflect.DeepEqual(ids, want) {
			t.Errorf("ListKeys() ids = %v, want %v", ids, want)
		}
	})
}

func TestStore_ConfigVersions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Fetch(ctx, "openai"); !errors.Is(err, control.ErrConfigNotFound) {
			t.Fatalf("Fetch(missing) error = %v, want ErrConfigNotFound", err)
		}

		v1, err := s.PutConfig(ctx, "openai", control.Document{"api_key": "sk-1", "limits": map[string]any{"rpm": 60}})
		if err != nil {
			t.Fatalf("PutConfig() error = %v", err)
		}
		v2, err := s.PutConfig(ctx, "openai", control.Document{"api_key": "sk-2"})
		if err != nil {
			t.Fatalf("PutConfig() error = %v", err)
		}
		if v1 != 1 || v2 != 2 {
			t.Fatalf("versions = %d, %d, want 1, 2", v1, v2)
		}

		doc, err := s.Fetch(ctx, "openai")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if doc["api_key"] != "sk-2" {
			t.Errorf("latest api_key = %v, want sk-2", doc["api_key"])
		}

		if err := s.DeactivateConfig(ctx, "openai", 2); err != nil {
			t.Fatalf("DeactivateConfig() error = %v", err)
		}
		doc, err = s.Fetch(ctx, "openai")
		if err != nil {
			t.Fatalf("Fetch() after rollback error = %v", err)
		}
		if doc["api_key"] != "sk-1" {
			t.Errorf("rolled back api_key = %v, want sk-1", doc["api_key"])
		}
		limits, _ := doc["limits"].(map[string]any)
		if limits["rpm"] != float64(60) {
			t.Errorf("nested number = %#v, want float64(60)", limits["rpm"])
		}

		if err := s.DeactivateConfig(ctx, "openai", 1); err != nil {
			t.Fatalf("DeactivateConfig() error = %v", err)
		}
		if _, err := s.Fetch(ctx, "openai"); !errors.Is(err, control.ErrConfigNotFound) {
			t.Errorf("Fetch() with no active version error = %v, want ErrConfigNotFound", err)
		}
		if err := s.DeactivateConfig(ctx, "openai", 9); !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("DeactivateConfig(9) error = %v, want ErrVersionNotFound", err)
		}

		versions, err := s.ConfigVersions(ctx, "openai")
		if err != nil {
			t.Fatalf("ConfigVersions() error = %v", err)
		}
		if len(versions) != 2 || versions[0].Version != 1 || versions[1].Version != 2 {
			t.Errorf("ConfigVersions() = %+v", versions)
		}
		for _, v := range versions {
			if v.Active {
				t.Errorf("version %d still active", v.Version)
			}
		}

		if _, err := s.PutConfig(ctx, "", control.Document{}); err == nil {
			t.Error("empty config name accepted")
		}
		if _, err := s.PutConfig(ctx, "bad", control.Document{"ch": make(chan int)}); err == nil {
			t.Error("unencodable document accepted")
		}
	})
}

func TestStore_ServesInjectPolicy(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.PutConfig(ctx, "openai", control.Document{"api_key": "sk-backend"}); err != nil {
			t.Fatalf("PutConfig() error = %v", err)
		}
		p, err := control.DefaultLoader().LoadJSON([]byte(`{"type":"InjectBackendCredential","config":{"config_name":"openai"}}`))
		if err != nil {
			t.Fatalf("LoadJSON() error = %v", err)
		}
		tx := newTransaction()
		out, err := control.Apply(ctx, p, tx, &control.Env{Configs: s, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if out.Request.Credential != "sk-backend" {
			t.Errorf("injected credential = %q", out.Request.Credential)
		}
	})
}

func TestMemoryStore_Changes(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	changes, err := s.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}

	if _, err := s.PutConfig(context.Background(), "root", control.Document{"type": "SerialPolicy"}); err != nil {
		t.Fatalf("PutConfig() error = %v", err)
	}
	select {
	case name := <-changes:
		if name != "root" {
			t.Errorf("change = %q, want root", name)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			t.Error("channel delivered after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestHashKey(t *testing.T) {
	if HashKey("a") == HashKey("b") {
		t.Error("distinct values hash equal")
	}
	if got := len(HashKey("sk-test")); got != 64 {
		t.Errorf("hash length = %d, want 64", got)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTransaction() *transaction.Transaction {
	return transaction.New(&transaction.Request{
		Method:   "POST",
		Endpoint: "/v1/chat/completions",
		Payload:  map[string]any{"model": "gpt-4o"},
	})
}
