package condition

import (
	"errors"
	"fmt"
	"strings"
)

// LoadError reports a malformed condition or resolver document. Path locates
// the offending node relative to the document passed to the Loader, for
// example "conditions[1].left".
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

// Error returns the error message.
func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Path == "" {
		return "condition load error: " + msg
	}
	return fmt.Sprintf("condition load error at %s: %s", e.Path, msg)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// JoinPath prefixes a relative document path with a parent segment.
// Index segments ("[2]") attach without a dot.
func JoinPath(parent, child string) string {
	switch {
	case parent == "":
		return child
	case child == "":
		return parent
	case strings.HasPrefix(child, "["):
		return parent + child
	default:
		return parent + "." + child
	}
}

// nest relocates err under the given segment.
func nest(err error, segment string) error {
	var le *LoadError
	if errors.As(err, &le) {
		return &LoadError{Path: JoinPath(segment, le.Path), Message: le.Message, Cause: le.Cause}
	}
	return &LoadError{Path: segment, Message: "invalid document", Cause: err}
}

// TypeMismatchError reports comparison operands whose types the operator
// cannot compare.
type TypeMismatchError struct {
	// Operator is the comparison tag, e.g. "contains".
	Operator string

	// Operand is "left" or "right".
	Operand string

	// Expected describes the acceptable types.
	Expected string

	// Actual is the type that was found.
	Actual string
}

// Error returns the error message.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s operand must be %s, got %s", e.Operator, e.Operand, e.Expected, e.Actual)
}

// typeName names the type of a normalised operand.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
