package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"mercator-hq/sluice/pkg/transaction"
)

// comparator decides a comparison over two normalised operands.
type comparator func(left, right any) (bool, error)

// comparators is the dispatch table for every comparison kind except
// regex_match, which needs the compiled pattern.
var comparators = map[Kind]comparator{
	KindEquals:             compareEqual,
	KindNotEquals:          compareNotEqual,
	KindContains:           compareContains,
	KindLessThan:           ordered(KindLessThan, func(c int) bool { return c < 0 }),
	KindLessThanOrEqual:    ordered(KindLessThanOrEqual, func(c int) bool { return c <= 0 }),
	KindGreaterThan:        ordered(KindGreaterThan, func(c int) bool { return c > 0 }),
	KindGreaterThanOrEqual: ordered(KindGreaterThanOrEqual, func(c int) bool { return c >= 0 }),
	KindRegexMatch:         compareRegex,
}

// Comparison compares the operands produced by two resolvers.
type Comparison struct {
	kind    Kind
	left    Resolver
	right   Resolver
	compare comparator

	// pattern is set for regex_match with a static right operand.
	pattern *regexp.Regexp
}

// NewComparison creates a comparison of the given kind. A regex_match whose
// right operand is static has its pattern compiled here.
func NewComparison(kind Kind, left, right Resolver) (*Comparison, error) {
	compare, ok := comparators[kind]
	if !ok {
		return nil, fmt.Errorf("%s is not a comparison", kind)
	}
	if left == nil || right == nil {
		return nil, fmt.Errorf("%s requires both operands", kind)
	}

	c := &Comparison{kind: kind, left: left, right: right, compare: compare}
	if kind == KindRegexMatch {
		if s, ok := right.(*Static); ok {
			pattern, ok := s.Value().(string)
			if !ok {
				return nil, &TypeMismatchError{Operator: kind.String(), Operand: "right", Expected: "string", Actual: typeName(s.Value())}
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
			}
			c.pattern = re
		}
	}
	return c, nil
}

// Kind implements Condition.
func (c *Comparison) Kind() Kind { return c.kind }

// Left returns the left operand resolver.
func (c *Comparison) Left() Resolver { return c.left }

// Right returns the right operand resolver.
func (c *Comparison) Right() Resolver { return c.right }

// Evaluate implements Condition.
func (c *Comparison) Evaluate(t *transaction.Transaction) (bool, error) {
	left, err := c.left.Resolve(t)
	if err != nil {
		return false, fmt.Errorf("%s: left operand: %w", c.kind, err)
	}
	right, err := c.right.Resolve(t)
	if err != nil {
		return false, fmt.Errorf("%s: right operand: %w", c.kind, err)
	}

	if transaction.IsAbsent(left) || transaction.IsAbsent(right) {
		return c.kind == KindNotEquals, nil
	}

	if c.pattern != nil {
		s, ok := left.(string)
		if !ok {
			return false, &TypeMismatchError{Operator: c.kind.String(), Operand: "left", Expected: "string", Actual: typeName(left)}
		}
		return c.pattern.MatchString(s), nil
	}
	return c.compare(left, right)
}

// Document implements Condition.
func (c *Comparison) Document() Document {
	return Document{
		"type":  c.kind.String(),
		"left":  c.left.Document(),
		"right": c.right.Document(),
	}
}

func compareEqual(left, right any) (bool, error) {
	return reflect.DeepEqual(left, right), nil
}

func compareNotEqual(left, right any) (bool, error) {
	return !reflect.DeepEqual(left, right), nil
}

// compareContains reports whether right is a member of left: a substring of
// a string, an element of a list or a key of a map.
func compareContains(left, right any) (bool, error) {
	op := KindContains.String()
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return false, &TypeMismatchError{Operator: op, Operand: "right", Expected: "string", Actual: typeName(right)}
		}
		return strings.Contains(l, r), nil

	case []any:
		for _, item := range l {
			if reflect.DeepEqual(item, right) {
				return true, nil
			}
		}
		return false, nil

	case map[string]any:
		key, ok := right.(string)
		if !ok {
			return false, &TypeMismatchError{Operator: op, Operand: "right", Expected: "string key", Actual: typeName(right)}
		}
		_, found := l[key]
		return found, nil

	default:
		return false, &TypeMismatchError{Operator: op, Operand: "left", Expected: "string, list or map", Actual: typeName(left)}
	}
}

// ordered builds a comparator for numbers or strings. Mixed or unordered
// operand types fail.
func ordered(kind Kind, accept func(int) bool) comparator {
	return func(left, right any) (bool, error) {
		switch l := left.(type) {
		case float64:
			r, ok := right.(float64)
			if !ok {
				return false, &TypeMismatchError{Operator: kind.String(), Operand: "right", Expected: "number", Actual: typeName(right)}
			}
			switch {
			case l < r:
				return accept(-1), nil
			case l > r:
				return accept(1), nil
			default:
				return accept(0), nil
			}
		case string:
			r, ok := right.(string)
			if !ok {
				return false, &TypeMismatchError{Operator: kind.String(), Operand: "right", Expected: "string", Actual: typeName(right)}
			}
			return accept(strings.Compare(l, r)), nil
		default:
			return false, &TypeMismatchError{Operator: kind.String(), Operand: "left", Expected: "number or string", Actual: typeName(left)}
		}
	}
}

// compareRegex searches left for the pattern in right. Used when the pattern
// comes from the transaction and could not be compiled at load time.
func compareRegex(left, right any) (bool, error) {
	op := KindRegexMatch.String()
	subject, ok := left.(string)
	if !ok {
		return false, &TypeMismatchError{Operator: op, Operand: "left", Expected: "string", Actual: typeName(left)}
	}
	pattern, ok := right.(string)
	if !ok {
		return false, &TypeMismatchError{Operator: op, Operand: "right", Expected: "string", Actual: typeName(right)}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return re.MatchString(subject), nil
}
