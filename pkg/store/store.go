package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mercator-hq/sluice/pkg/control"
)

var (
	// ErrKeyExists is returned when adding a key whose value or ID is
	// already stored.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound is returned when an admin operation names an unknown key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrVersionNotFound is returned when a config version does not exist.
	ErrVersionNotFound = errors.New("config version not found")
)

// KeyRecord describes a stored caller credential. The key value itself is
// never stored; only its SHA-256 hash is.
type KeyRecord struct {
	// ID identifies the caller (caller_id).
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Team is the caller's team (caller_team).
	Team string `json:"team,omitempty"`

	// Active reports whether the key may authenticate.
	Active bool `json:"active"`

	// CreatedAt is when the key was added.
	CreatedAt time.Time `json:"created_at"`
}

// ConfigVersion is one stored version of a named configuration document.
type ConfigVersion struct {
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	Active    bool             `json:"active"`
	Document  control.Document `json:"document"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store is the credential and configuration store consumed by the pipeline,
// plus the administrative operations used by the CLI.
//
// Fetch returns the highest active version of a document. PutConfig appends
// a new active version; DeactivateConfig withdraws one, so deactivating the
// latest version rolls back to the previous active one.
type Store interface {
	control.CredentialStore
	control.ConfigStore

	// AddKey stores a new credential under the hash of value.
	AddKey(ctx context.Context, value string, rec KeyRecord) error

	// SetKeyActive enables or disables the key with the given ID.
	SetKeyActive(ctx context.Context, id string, active bool) error

	// ListKeys returns all keys ordered by ID.
	ListKeys(ctx context.Context) ([]KeyRecord, error)

	// PutConfig stores doc as a new active version of name and returns the
	// version number.
	PutConfig(ctx context.Context, name string, doc control.Document) (int, error)

	// DeactivateConfig marks one version of name inactive.
	DeactivateConfig(ctx context.Context, name string, version int) error

	// ConfigVersions returns every stored version of name, oldest first.
	ConfigVersions(ctx context.Context, name string) ([]ConfigVersion, error)

	// Close releases resources held by the store.
	Close() error
}

// HashKey returns the hex-encoded SHA-256 digest under which a key value is
// stored.
func HashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// status maps a stored record to the lookup outcome.
func status(rec KeyRecord) (control.Credential, control.CredentialStatus) {
	cred := control.Credential{ID: rec.ID, Name: rec.Name, Team: rec.Team}
	if !rec.Active {
		return cred, control.CredentialInactive
	}
	return cred, control.CredentialActive
}

func validateKey(value string, rec KeyRecord) error {
	if value == "" {
		return fmt.Errorf("key value cannot be empty")
	}
	if rec.ID == "" {
		return fmt.Errorf("key id cannot be empty")
	}
	return nil
}

func validateConfigName(name string) error {
	if name == "" {
		return fmt.Errorf("config name cannot be empty")
	}
	return nil
}

// encodeDocument serializes doc, rejecting values JSON cannot carry.
func encodeDocument(doc control.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("config document cannot be nil")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config document: %w", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (control.Document, error) {
	var doc control.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config document: %w", err)
	}
	return doc, nil
}

// latestActive picks the highest active version.
func latestActive(versions []ConfigVersion) (ConfigVersion, bool) {
	var (
		best  ConfigVersion
		found bool
	)
	for _, v := range versions {
		if v.Active && (!found || v.Version > best.Version) {
			best, found = v, true
		}
	}
	return best, found
}

func notFound(name string) error {
	return fmt.Errorf("%w: %q", control.ErrConfigNotFound, name)
}
