package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/sluice/pkg/control"
)

// MemoryStore is an in-memory Store. Documents are stored in their JSON
// encoding so every store returns identical values (numbers as float64).
type MemoryStore struct {
	mu      sync.RWMutex
	keys    map[string]KeyRecord // by hash
	byID    map[string]string    // id -> hash
	configs map[string][]memoryVersion

	subMu sync.Mutex
	subs  map[chan string]struct{}
}

type memoryVersion struct {
	version   int
	active    bool
	data      []byte
	createdAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:    make(map[string]KeyRecord),
		byID:    make(map[string]string),
		configs: make(map[string][]memoryVersion),
		subs:    make(map[chan string]struct{}),
	}
}

// Verify implements control.CredentialStore.
func (m *MemoryStore) Verify(ctx context.Context, value string) (control.Credential, control.CredentialStatus, error) {
	if err := ctx.Err(); err != nil {
		return control.Credential{}, control.CredentialNotFound, err
	}
	m.mu.RLock()
	rec, ok := m.keys[HashKey(value)]
	m.mu.RUnlock()
	if !ok {
		return control.Credential{}, control.CredentialNotFound, nil
	}
	cred, st := status(rec)
	return cred, st, nil
}

// Fetch implements control.ConfigStore.
func (m *MemoryStore) Fetch(ctx context.Context, name string) (control.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	versions, err := m.ConfigVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	latest, ok := latestActive(versions)
	if !ok {
		return nil, notFound(name)
	}
	return latest.Document, nil
}

// AddKey implements Store.
func (m *MemoryStore) AddKey(_ context.Context, value string, rec KeyRecord) error {
	if err := validateKey(value, rec); err != nil {
		return err
	}
	hash := HashKey(value)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[hash]; ok {
		return ErrKeyExists
	}
	if _, ok := m.byID[rec.ID]; ok {
		return fmt.Errorf("%w: id %q", ErrKeyExists, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.keys[hash] = rec
	m.byID[rec.ID] = hash
	return nil
}

// SetKeyActive implements Store.
func (m *MemoryStore) SetKeyActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, id)
	}
	rec := m.keys[hash]
	rec.Active = active
	m.keys[hash] = rec
	return nil
}

// ListKeys implements Store.
func (m *MemoryStore) ListKeys(_ context.Context) ([]KeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]KeyRecord, 0, len(m.keys))
	for _, rec := range m.keys {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutConfig implements Store.
func (m *MemoryStore) PutConfig(_ context.Context, name string, doc control.Document) (int, error) {
	if err := validateConfigName(name); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	versions := m.configs[name]
	next := 1
	if n := len(versions); n > 0 {
		next = versions[n-1].version + 1
	}
	m.configs[name] = append(versions, memoryVersion{
		version:   next,
		active:    true,
		data:      data,
		createdAt: time.Now().UTC(),
	})
	m.mu.Unlock()

	m.notify(name)
	return next, nil
}

// DeactivateConfig implements Store.
func (m *MemoryStore) DeactivateConfig(_ context.Context, name string, version int) error {
	m.mu.Lock()
	versions := m.configs[name]
	found := false
	for i := range versions {
		if versions[i].version == version {
			versions[i].active = false
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s@%d", ErrVersionNotFound, name, version)
	}
	m.notify(name)
	return nil
}

// ConfigVersions implements Store.
func (m *MemoryStore) ConfigVersions(_ context.Context, name string) ([]ConfigVersion, error) {
	m.mu.RLock()
	versions := append([]memoryVersion(nil), m.configs[name]...)
	m.mu.RUnlock()

	out := make([]ConfigVersion, 0, len(versions))
	for _, v := range versions {
		doc, err := decodeDocument(v.data)
		if err != nil {
			return nil, err
		}
		out = append(out, ConfigVersion{
			Name:      name,
			Version:   v.version,
			Active:    v.active,
			Document:  doc,
			CreatedAt: v.createdAt,
		})
	}
	return out, nil
}

// Changes streams the names of configuration documents as they change. The
// channel is closed when ctx is done. Slow receivers miss notifications
// rather than block writers.
func (m *MemoryStore) Changes(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch, nil
}

func (m *MemoryStore) notify(name string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- name:
		default:
		}
	}
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
