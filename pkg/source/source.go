package source

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"mercator-hq/sluice/pkg/control"
)

// Snapshot is one loaded root policy.
type Snapshot struct {
	// Policy is the root of the pipeline.
	Policy control.Policy

	// Revision identifies the document the policy was loaded from.
	Revision string

	// LoadedAt is when the policy was installed.
	LoadedAt time.Time
}

// Source supplies the gateway's root policy. Current is safe to call from
// any goroutine; a caller keeps the tree it obtained even if a reload
// installs a new one mid-call.
type Source interface {
	// Current returns the installed root policy, or nil before the first
	// successful load.
	Current() control.Policy

	// Snapshot returns the installed root with its revision.
	Snapshot() (Snapshot, bool)
}

// ReloadFunc is notified after every reload attempt. err is nil when a new
// snapshot was installed.
type ReloadFunc func(snap Snapshot, err error)

// holder stores the current snapshot for lock-free reads.
type holder struct {
	current atomic.Pointer[Snapshot]
}

// Current implements Source.
func (h *holder) Current() control.Policy {
	if snap := h.current.Load(); snap != nil {
		return snap.Policy
	}
	return nil
}

// Snapshot implements Source.
func (h *holder) Snapshot() (Snapshot, bool) {
	if snap := h.current.Load(); snap != nil {
		return *snap, true
	}
	return Snapshot{}, false
}

// install swaps in p unless the revision is unchanged. It reports whether a
// swap happened.
func (h *holder) install(p control.Policy, revision string) (Snapshot, bool) {
	if prev := h.current.Load(); prev != nil && prev.Revision == revision {
		return *prev, false
	}
	snap := &Snapshot{Policy: p, Revision: revision, LoadedAt: time.Now()}
	h.current.Store(snap)
	return *snap, true
}

// revisionOf returns a short content digest.
func revisionOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}

// Static is a Source holding a fixed policy.
type Static struct {
	holder
}

// NewStatic returns a Source that always serves p.
func NewStatic(p control.Policy) *Static {
	s := &Static{}
	s.install(p, "static")
	return s
}
