package control

import (
	"context"
	"fmt"

	"mercator-hq/sluice/pkg/condition"
	"mercator-hq/sluice/pkg/transaction"
)

// Branch pairs a condition with the policy applied when it holds.
type Branch struct {
	Cond   condition.Condition
	Policy Policy
}

// Branching applies the policy of the first branch whose condition holds.
// With no match it applies the default, or returns the transaction
// unchanged when there is none.
type Branching struct {
	branches []Branch
	fallback Policy
}

// NewBranching creates a branching policy. Branch order is significant.
// fallback may be nil.
func NewBranching(branches []Branch, fallback Policy) *Branching {
	return &Branching{branches: append([]Branch(nil), branches...), fallback: fallback}
}

// Name implements Policy.
func (b *Branching) Name() string { return KindBranching.String() }

// Kind implements Policy.
func (b *Branching) Kind() Kind { return KindBranching }

// Branches returns the branches in evaluation order.
func (b *Branching) Branches() []Branch { return b.branches }

// Default returns the fallback policy, or nil.
func (b *Branching) Default() Policy { return b.fallback }

// Apply implements Policy. A condition that fails to evaluate aborts the
// dispatch and its error is returned.
func (b *Branching) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	for i, br := range b.branches {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		matched, err := br.Cond.Evaluate(t)
		if err != nil {
			err = fmt.Errorf("branch %d condition: %w", i, err)
			env.logFailure(ctx, b, t, err)
			return t, err
		}
		if matched {
			env.logger().DebugContext(ctx, "branch selected",
				"transaction_id", transactionID(t),
				"policy", b.Name(),
				"branch", i,
				"target", br.Policy.Name(),
			)
			return Apply(ctx, br.Policy, t, env)
		}
	}

	if b.fallback == nil {
		return t, nil
	}
	if err := ctx.Err(); err != nil {
		return t, err
	}
	return Apply(ctx, b.fallback, t, env)
}

// Document implements Policy.
func (b *Branching) Document() Document {
	pairs := make([]any, len(b.branches))
	for i, br := range b.branches {
		pairs[i] = []any{br.Cond.Document(), br.Policy.Document()}
	}
	var fallback any
	if b.fallback != nil {
		fallback = b.fallback.Document()
	}
	return document(KindBranching, Document{
		"cond_to_policy_map": pairs,
		"default_policy":     fallback,
	})
}

func loadBranching(l *Loader, config Document) (Policy, error) {
	raw, ok := config["cond_to_policy_map"]
	if !ok {
		return nil, &LoadError{Message: `missing "cond_to_policy_map"`}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, &LoadError{Path: "cond_to_policy_map", Message: "must be a list, got " + typeName(raw)}
	}

	branches := make([]Branch, 0, len(items))
	for i, item := range items {
		at := fmtIndex("cond_to_policy_map", i)
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, &LoadError{Path: at, Message: "branch must be a [condition, policy] pair"}
		}
		cond, err := l.LoadCondition(pair[0])
		if err != nil {
			return nil, nest(err, at+"[0]")
		}
		p, err := l.Load(pair[1])
		if err != nil {
			return nil, nest(err, at+"[1]")
		}
		branches = append(branches, Branch{Cond: cond, Policy: p})
	}

	var fallback Policy
	if raw, ok := config["default_policy"]; ok && raw != nil {
		p, err := l.Load(raw)
		if err != nil {
			return nil, nest(err, "default_policy")
		}
		fallback = p
	}
	return NewBranching(branches, fallback), nil
}
