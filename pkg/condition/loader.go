package condition

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"mercator-hq/sluice/pkg/transaction"
)

// Loader builds condition trees from documents.
type Loader struct {
	registry *Registry
}

// NewLoader creates a loader over the given registry. A nil registry selects
// DefaultRegistry.
func NewLoader(registry *Registry) *Loader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Loader{registry: registry}
}

// Registry returns the registry the loader resolves tags with.
func (l *Loader) Registry() *Registry { return l.registry }

// Load builds a condition from its document. Failures are *LoadError values
// whose Path locates the offending node.
func (l *Loader) Load(doc any) (Condition, error) {
	d, err := asDocument(doc, "condition")
	if err != nil {
		return nil, err
	}
	tag, err := typeTag(d)
	if err != nil {
		return nil, err
	}
	factory, ok := l.registry.Factory(tag)
	if !ok {
		return nil, &LoadError{Path: "type", Message: fmt.Sprintf("unknown condition type %q", tag)}
	}
	return factory(l, d)
}

// LoadJSON decodes and loads a JSON condition document.
func (l *Loader) LoadJSON(data []byte) (Condition, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "invalid JSON", Cause: err}
	}
	return l.Load(doc)
}

// LoadYAML decodes and loads a YAML condition document.
func (l *Loader) LoadYAML(data []byte) (Condition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "invalid YAML", Cause: err}
	}
	return l.Load(doc)
}

func comparisonFactory(kind Kind) Factory {
	return func(l *Loader, doc Document) (Condition, error) {
		left, err := operand(doc, "left")
		if err != nil {
			return nil, err
		}
		right, err := operand(doc, "right")
		if err != nil {
			return nil, err
		}
		c, err := NewComparison(kind, left, right)
		if err != nil {
			return nil, &LoadError{Path: "right", Message: "invalid operand", Cause: err}
		}
		return c, nil
	}
}

func operand(doc Document, field string) (Resolver, error) {
	raw, ok := doc[field]
	if !ok {
		return nil, &LoadError{Message: fmt.Sprintf("missing %q", field)}
	}
	r, err := LoadResolver(raw)
	if err != nil {
		return nil, nest(err, field)
	}
	return r, nil
}

func loadAll(l *Loader, doc Document) (Condition, error) {
	conds, err := l.loadList(doc)
	if err != nil {
		return nil, err
	}
	return NewAll(conds...), nil
}

func loadAny(l *Loader, doc Document) (Condition, error) {
	conds, err := l.loadList(doc)
	if err != nil {
		return nil, err
	}
	return NewAny(conds...), nil
}

func loadNot(l *Loader, doc Document) (Condition, error) {
	raw, ok := doc["cond"]
	if !ok {
		return nil, &LoadError{Message: `missing "cond"`}
	}
	c, err := l.Load(raw)
	if err != nil {
		return nil, nest(err, "cond")
	}
	return NewNot(c), nil
}

func (l *Loader) loadList(doc Document) ([]Condition, error) {
	raw, ok := doc["conditions"]
	if !ok {
		return nil, &LoadError{Message: `missing "conditions"`}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, &LoadError{Path: "conditions", Message: fmt.Sprintf("must be a list, got %s", typeName(transaction.Plain(raw)))}
	}
	conds := make([]Condition, 0, len(items))
	for i, item := range items {
		c, err := l.Load(item)
		if err != nil {
			return nil, nest(err, fmt.Sprintf("conditions[%d]", i))
		}
		conds = append(conds, c)
	}
	return conds, nil
}
