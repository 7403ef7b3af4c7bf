package condition

import (
	"fmt"

	"mercator-hq/sluice/pkg/transaction"
)

// All holds when every sub-condition holds. An empty All is true.
type All struct {
	conditions []Condition
}

// NewAll creates an all combinator.
func NewAll(conditions ...Condition) *All {
	return &All{conditions: append([]Condition(nil), conditions...)}
}

// Conditions returns the sub-conditions in order.
func (a *All) Conditions() []Condition { return a.conditions }

// Kind implements Condition.
func (a *All) Kind() Kind { return KindAll }

// Evaluate implements Condition. Evaluation stops at the first false or
// failing sub-condition.
func (a *All) Evaluate(t *transaction.Transaction) (bool, error) {
	for i, c := range a.conditions {
		ok, err := c.Evaluate(t)
		if err != nil {
			return false, fmt.Errorf("all[%d]: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Document implements Condition.
func (a *All) Document() Document {
	return Document{"type": KindAll.String(), "conditions": documents(a.conditions)}
}

// Any holds when at least one sub-condition holds. An empty Any is false.
type Any struct {
	conditions []Condition
}

// NewAny creates an any combinator.
func NewAny(conditions ...Condition) *Any {
	return &Any{conditions: append([]Condition(nil), conditions...)}
}

// Conditions returns the sub-conditions in order.
func (a *Any) Conditions() []Condition { return a.conditions }

// Kind implements Condition.
func (a *Any) Kind() Kind { return KindAny }

// Evaluate implements Condition. Evaluation stops at the first true or
// failing sub-condition.
func (a *Any) Evaluate(t *transaction.Transaction) (bool, error) {
	for i, c := range a.conditions {
		ok, err := c.Evaluate(t)
		if err != nil {
			return false, fmt.Errorf("any[%d]: %w", i, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Document implements Condition.
func (a *Any) Document() Document {
	return Document{"type": KindAny.String(), "conditions": documents(a.conditions)}
}

// Not negates a condition.
type Not struct {
	cond Condition
}

// NewNot creates a negation.
func NewNot(cond Condition) *Not {
	return &Not{cond: cond}
}

// Cond returns the negated condition.
func (n *Not) Cond() Condition { return n.cond }

// Kind implements Condition.
func (n *Not) Kind() Kind { return KindNot }

// Evaluate implements Condition.
func (n *Not) Evaluate(t *transaction.Transaction) (bool, error) {
	ok, err := n.cond.Evaluate(t)
	if err != nil {
		return false, fmt.Errorf("not: %w", err)
	}
	return !ok, nil
}

// Document implements Condition.
func (n *Not) Document() Document {
	return Document{"type": KindNot.String(), "cond": n.cond.Document()}
}

func documents(conditions []Condition) []any {
	out := make([]any, len(conditions))
	for i, c := range conditions {
		out[i] = c.Document()
	}
	return out
}
