package condition

import (
	"fmt"

	"mercator-hq/sluice/pkg/transaction"
)

// Document is the declarative form of a condition, resolver or policy, as
// decoded from JSON or YAML.
type Document = map[string]any

// Resolver tags.
const (
	ResolverStatic = "static"
	ResolverPath   = "path"
)

// Resolver produces a comparison operand.
type Resolver interface {
	// Resolve returns the operand for t, normalised with transaction.Plain.
	// A path that selects nothing yields transaction.Absent.
	Resolve(t *transaction.Transaction) (any, error)

	// Document returns the declarative form of the resolver.
	Document() Document
}

// Static resolves to a fixed literal.
type Static struct {
	value any
}

// NewStatic creates a static resolver. The value is normalised so numbers
// compare and serialise as float64.
func NewStatic(value any) *Static {
	return &Static{value: transaction.Plain(value)}
}

// Value returns the literal.
func (s *Static) Value() any { return s.value }

// Resolve implements Resolver.
func (s *Static) Resolve(*transaction.Transaction) (any, error) {
	return transaction.Plain(s.value), nil
}

// Document implements Resolver.
func (s *Static) Document() Document {
	return Document{"type": ResolverStatic, "value": transaction.Plain(s.value)}
}

// Path resolves to the value found at a dotted path in the transaction.
type Path struct {
	path string
}

// NewPath creates a path resolver. Malformed paths are rejected here so they
// never surface at request time.
func NewPath(path string) (*Path, error) {
	if _, err := transaction.ParsePath(path); err != nil {
		return nil, err
	}
	return &Path{path: path}, nil
}

// Path returns the dotted path.
func (p *Path) Path() string { return p.path }

// Resolve implements Resolver.
func (p *Path) Resolve(t *transaction.Transaction) (any, error) {
	v, err := transaction.Lookup(t, p.path)
	if err != nil {
		return nil, err
	}
	return transaction.Plain(v), nil
}

// Document implements Resolver.
func (p *Path) Document() Document {
	return Document{"type": ResolverPath, "path": p.path}
}

// LoadResolver builds a Resolver from its document.
func LoadResolver(doc any) (Resolver, error) {
	d, err := asDocument(doc, "resolver")
	if err != nil {
		return nil, err
	}
	tag, err := typeTag(d)
	if err != nil {
		return nil, err
	}

	switch tag {
	case ResolverStatic:
		value, ok := d["value"]
		if !ok {
			return nil, &LoadError{Message: `static resolver requires "value"`}
		}
		if !isLiteral(transaction.Plain(value)) {
			return nil, &LoadError{Path: "value", Message: fmt.Sprintf("unsupported literal of type %T", value)}
		}
		return NewStatic(value), nil

	case ResolverPath:
		raw, ok := d["path"]
		if !ok {
			return nil, &LoadError{Message: `path resolver requires "path"`}
		}
		path, ok := raw.(string)
		if !ok {
			return nil, &LoadError{Path: "path", Message: fmt.Sprintf("must be a string, got %s", typeName(transaction.Plain(raw)))}
		}
		p, err := NewPath(path)
		if err != nil {
			return nil, &LoadError{Path: "path", Message: "malformed path", Cause: err}
		}
		return p, nil

	default:
		return nil, &LoadError{Path: "type", Message: fmt.Sprintf("unknown resolver type %q", tag)}
	}
}

// asDocument checks that doc is an object.
func asDocument(doc any, what string) (Document, error) {
	d, ok := doc.(map[string]any)
	if !ok {
		return nil, &LoadError{Message: fmt.Sprintf("%s must be an object, got %s", what, typeName(transaction.Plain(doc)))}
	}
	return d, nil
}

// typeTag extracts the mandatory string "type" field.
func typeTag(d Document) (string, error) {
	raw, ok := d["type"]
	if !ok {
		return "", &LoadError{Message: `missing "type"`}
	}
	tag, ok := raw.(string)
	if !ok {
		return "", &LoadError{Path: "type", Message: fmt.Sprintf("must be a string, got %s", typeName(transaction.Plain(raw)))}
	}
	return tag, nil
}

// isLiteral reports whether a normalised value is JSON-shaped.
func isLiteral(v any) bool {
	switch val := v.(type) {
	case nil, string, float64, bool:
		return true
	case []any:
		for _, e := range val {
			if !isLiteral(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range val {
			if !isLiteral(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
