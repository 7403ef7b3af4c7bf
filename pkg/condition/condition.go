package condition

import (
	"mercator-hq/sluice/pkg/transaction"
)

// Kind enumerates the closed set of condition variants.
type Kind int

const (
	KindEquals Kind = iota + 1
	KindNotEquals
	KindContains
	KindLessThan
	KindLessThanOrEqual
	KindGreaterThan
	KindGreaterThanOrEqual
	KindRegexMatch
	KindAll
	KindAny
	KindNot
)

// kindNames holds the stable document tag of every variant.
var kindNames = map[Kind]string{
	KindEquals:             "equals",
	KindNotEquals:          "not_equals",
	KindContains:           "contains",
	KindLessThan:           "less_than",
	KindLessThanOrEqual:    "less_than_or_equal",
	KindGreaterThan:        "greater_than",
	KindGreaterThanOrEqual: "greater_than_or_equal",
	KindRegexMatch:         "regex_match",
	KindAll:                "all",
	KindAny:                "any",
	KindNot:                "not",
}

// String returns the document tag of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsComparison reports whether k is a two-operand comparison.
func (k Kind) IsComparison() bool {
	return k >= KindEquals && k <= KindRegexMatch
}

// Condition is a pure predicate over a transaction. Implementations never
// mutate the transaction and hold no per-call state, so one tree can be
// evaluated by many goroutines.
type Condition interface {
	// Evaluate reports whether the condition holds for t.
	Evaluate(t *transaction.Transaction) (bool, error)

	// Kind returns the variant.
	Kind() Kind

	// Document returns the declarative form of the condition.
	Document() Document
}
