// Package store provides the credential store and configuration-document
// store consumed by the policy pipeline.
//
// Three implementations satisfy Store:
//
//   - MemoryStore: process-local, for tests and single-shot tools
//   - SQLiteStore: a WAL-mode SQLite file (modernc.org/sqlite, no cgo)
//   - RedisStore: shared across gateway instances, with change notifications
//
// Caller keys are stored by SHA-256 digest; the plaintext value is never
// persisted. Configuration documents are versioned: PutConfig appends an
// active version, Fetch returns the highest active version, and
// DeactivateConfig withdraws a version to roll back.
//
// MemoryStore and RedisStore also expose Changes, a stream of document names
// written through any instance, which the store-backed policy source uses to
// reload without waiting for its refresh schedule.
package store
