package control

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/sluice/pkg/transaction"
)

// CredentialStatus is the outcome of a credential lookup.
type CredentialStatus int

const (
	CredentialNotFound CredentialStatus = iota
	CredentialActive
	CredentialInactive
)

// String returns the status name.
func (s CredentialStatus) String() string {
	switch s {
	case CredentialActive:
		return "active"
	case CredentialInactive:
		return "inactive"
	default:
		return "not_found"
	}
}

// Credential describes a caller key known to the credential store.
type Credential struct {
	// ID identifies the caller (recorded as caller_id).
	ID string

	// Name is a human-readable label for the key.
	Name string

	// Team is the caller's team (recorded as caller_team when set).
	Team string
}

// CredentialStore verifies caller credentials.
// Implementations must be safe for concurrent use.
type CredentialStore interface {
	// Verify looks up a credential by its value. An unknown value returns
	// CredentialNotFound with a nil error; err is reserved for store failures.
	Verify(ctx context.Context, value string) (Credential, CredentialStatus, error)
}

// ErrConfigNotFound is returned by ConfigStore.Fetch for an unknown name.
var ErrConfigNotFound = errors.New("configuration document not found")

// ConfigStore serves named configuration documents.
// Implementations must be safe for concurrent use.
type ConfigStore interface {
	// Fetch returns the latest active document stored under name.
	Fetch(ctx context.Context, name string) (Document, error)
}

// BackendRequest is a finalized request handed to the backend client.
type BackendRequest struct {
	// Endpoint is the backend API path (e.g. "/v1/chat/completions").
	Endpoint string

	// Credential is the backend bearer key.
	Credential string

	// Headers are forwarded request headers.
	Headers map[string]string

	// Payload is the JSON body.
	Payload map[string]any
}

// BackendResponse is the structured backend reply.
type BackendResponse struct {
	Endpoint   string
	StatusCode int
	Payload    map[string]any
}

// BackendClient dispatches requests to the backend LLM provider.
// Implementations must be safe for concurrent use and honour ctx.
type BackendClient interface {
	Dispatch(ctx context.Context, req BackendRequest) (*BackendResponse, error)
}

// Observer is notified around every policy application. It may return a
// derived context (e.g. carrying a trace span) that is passed to the policy.
// The returned function is called with the application's error.
type Observer interface {
	ObservePolicy(ctx context.Context, p Policy, t *transaction.Transaction) (context.Context, func(error))
}

// Observers fans out to several observers in order.
type Observers []Observer

// ObservePolicy implements Observer.
func (o Observers) ObservePolicy(ctx context.Context, p Policy, t *transaction.Transaction) (context.Context, func(error)) {
	dones := make([]func(error), 0, len(o))
	for _, obs := range o {
		if obs == nil {
			continue
		}
		var done func(error)
		ctx, done = obs.ObservePolicy(ctx, p, t)
		dones = append(dones, done)
	}
	return ctx, func(err error) {
		for i := len(dones) - 1; i >= 0; i-- {
			dones[i](err)
		}
	}
}

// Env carries the collaborators a pipeline needs. It is injected per call and
// never owned by a policy; any field may be nil when the tree does not use it.
type Env struct {
	Credentials CredentialStore
	Configs     ConfigStore
	Backend     BackendClient
	Logger      *slog.Logger
	Observer    Observer
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// logFailure records a policy failure at its point of origin.
func (e *Env) logFailure(ctx context.Context, p Policy, t *transaction.Transaction, err error) {
	kind := KindOf(err)
	level := slog.LevelError
	switch kind {
	case KindAuthentication, KindContentPolicy:
		level = slog.LevelWarn
	}
	e.logger().Log(ctx, level, "policy failed",
		"transaction_id", transactionID(t),
		"policy", p.Name(),
		"error_kind", kind.String(),
		"error", err,
	)
}

func transactionID(t *transaction.Transaction) string {
	if t == nil {
		return ""
	}
	return t.ID
}
