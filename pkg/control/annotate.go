package control

import (
	"context"

	"mercator-hq/sluice/pkg/transaction"
)

// SetData writes a fixed value to side-data. Branches use it to annotate a
// transaction for later policies and for logs.
type SetData struct {
	key   string
	value transaction.Value
}

// NewSetData creates the policy.
func NewSetData(key string, value transaction.Value) *SetData {
	return &SetData{key: key, value: value}
}

// Name implements Policy.
func (s *SetData) Name() string { return KindSetData.String() }

// Kind implements Policy.
func (s *SetData) Kind() Kind { return KindSetData }

// Document implements Policy.
func (s *SetData) Document() Document {
	return document(KindSetData, Document{"key": s.key, "value": s.value.Interface()})
}

// Apply implements Policy.
func (s *SetData) Apply(_ context.Context, t *transaction.Transaction, _ *Env) (*transaction.Transaction, error) {
	sideData(t).Set(s.key, s.value)
	return t, nil
}

func loadSetData(_ *Loader, config Document) (Policy, error) {
	key, err := requiredString(config, "key")
	if err != nil {
		return nil, err
	}
	raw, ok := config["value"]
	if !ok {
		return nil, &LoadError{Message: `missing "value"`}
	}
	value, err := transaction.FromInterface(raw)
	if err != nil {
		return nil, &LoadError{Path: "value", Message: "unsupported side-data value", Cause: err}
	}
	return NewSetData(key, value), nil
}

// Reject fails every transaction with a ContentPolicyViolation. It is the
// usual target of a denying branch.
type Reject struct {
	reason string
}

// NewReject creates the policy.
func NewReject(reason string) *Reject {
	return &Reject{reason: reason}
}

// Name implements Policy.
func (r *Reject) Name() string { return KindReject.String() }

// Kind implements Policy.
func (r *Reject) Kind() Kind { return KindReject }

// Document implements Policy.
func (r *Reject) Document() Document {
	return document(KindReject, Document{"reason": r.reason})
}

// Apply implements Policy.
func (r *Reject) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	reason := r.reason
	if reason == "" {
		reason = "request rejected by policy"
	}
	err := &ContentPolicyViolation{Policy: r.Name(), Reason: reason}
	env.logFailure(ctx, r, t, err)
	return t, err
}

func loadReject(_ *Loader, config Document) (Policy, error) {
	reason, err := optionalString(config, "reason")
	if err != nil {
		return nil, err
	}
	return NewReject(reason), nil
}
