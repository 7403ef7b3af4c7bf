package control

import (
	"context"

	"mercator-hq/sluice/pkg/transaction"
)

// Serial applies its members in declared order and halts at the first
// failure. Effects of members that already ran are not rolled back.
type Serial struct {
	name     string
	policies []Policy
}

// NewSerial creates a serial composition.
func NewSerial(name string, policies ...Policy) *Serial {
	return &Serial{name: name, policies: append([]Policy(nil), policies...)}
}

// Name implements Policy. It is the configured name, or the tag when unset.
func (s *Serial) Name() string {
	if s.name != "" {
		return s.name
	}
	return KindSerial.String()
}

// Kind implements Policy.
func (s *Serial) Kind() Kind { return KindSerial }

// Policies returns the members in order.
func (s *Serial) Policies() []Policy { return s.policies }

// Apply implements Policy. Member errors are returned unmodified.
func (s *Serial) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if len(s.policies) == 0 {
		env.logger().WarnContext(ctx, "serial policy has no members",
			"transaction_id", transactionID(t),
			"policy", s.Name(),
		)
		return t, nil
	}

	for _, p := range s.policies {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		var err error
		t, err = Apply(ctx, p, t, env)
		if err != nil {
			return t, err
		}
	}
	return t, nil
}

// Document implements Policy.
func (s *Serial) Document() Document {
	members := make([]any, len(s.policies))
	for i, p := range s.policies {
		members[i] = p.Document()
	}
	return document(KindSerial, Document{"name": s.name, "policies": members})
}

func loadSerial(l *Loader, config Document) (Policy, error) {
	name, err := optionalString(config, "name")
	if err != nil {
		return nil, err
	}
	raw, ok := config["policies"]
	if !ok {
		return nil, &LoadError{Message: `missing "policies"`}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, &LoadError{Path: "policies", Message: "must be a list, got " + typeName(raw)}
	}

	members := make([]Policy, 0, len(items))
	for i, item := range items {
		p, err := l.Load(item)
		if err != nil {
			return nil, nest(err, fmtIndex("policies", i))
		}
		members = append(members, p)
	}
	return NewSerial(name, members...), nil
}
