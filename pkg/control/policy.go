package control

import (
	"context"

	"mercator-hq/sluice/pkg/condition"
	"mercator-hq/sluice/pkg/transaction"
)

// Document is the declarative form of a policy:
//
//	{"type": <tag>, "config": {...}}
type Document = condition.Document

// Kind enumerates the closed set of policy variants.
type Kind int

const (
	KindSerial Kind = iota + 1
	KindBranching
	KindAuthenticateCaller
	KindInjectBackendCredential
	KindScanForLeakedSecrets
	KindRemapModel
	KindDispatchToBackend
	KindSetData
	KindReject
)

var kindNames = map[Kind]string{
	KindSerial:                  "SerialPolicy",
	KindBranching:               "BranchingPolicy",
	KindAuthenticateCaller:      "AuthenticateCaller",
	KindInjectBackendCredential: "InjectBackendCredential",
	KindScanForLeakedSecrets:    "ScanForLeakedSecrets",
	KindRemapModel:              "RemapModel",
	KindDispatchToBackend:       "DispatchToBackend",
	KindSetData:                 "SetData",
	KindReject:                  "Reject",
}

// String returns the document tag of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Policy is one step of a gateway pipeline.
//
// Apply may mutate t in place, replace its response or fail with a typed
// error. Callers must continue with the returned transaction. On failure the
// returned transaction carries the effects applied before the failure and
// should be discarded.
//
// Policies hold no per-call state; one tree serves every concurrent call.
type Policy interface {
	// Name labels the policy in logs. It is the document tag unless the
	// variant carries its own name.
	Name() string

	// Kind returns the variant.
	Kind() Kind

	// Apply runs the policy against t.
	Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error)

	// Document returns the declarative form of the policy.
	Document() Document
}

// Apply runs p against t, notifying env's observer. Composites use it for
// their children so every step is observed.
func Apply(ctx context.Context, p Policy, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if env == nil {
		env = &Env{}
	}
	if t != nil {
		sideData(t)
	}
	if env.Observer == nil {
		return p.Apply(ctx, t, env)
	}
	ctx, done := env.Observer.ObservePolicy(ctx, p, t)
	out, err := p.Apply(ctx, t, env)
	done(err)
	return out, err
}

// sideData returns t's side-data, allocating it on first write.
func sideData(t *transaction.Transaction) transaction.SideData {
	if t.Data == nil {
		t.Data = make(transaction.SideData)
	}
	return t.Data
}

// document builds the canonical {"type", "config"} form.
func document(kind Kind, config Document) Document {
	if config == nil {
		config = Document{}
	}
	return Document{"type": kind.String(), "config": config}
}
