package control

import (
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"mercator-hq/sluice/pkg/condition"
)

// Loader turns policy documents into live policy trees.
//
// Documents take the canonical form {"type": <tag>, "config": {...}}. A
// document without a "config" key is read in flat form, where every field
// other than "type" is the config. Document always produces the canonical
// form.
type Loader struct {
	policies   *Registry
	conditions *condition.Loader
}

// NewLoader creates a loader. Nil registries select the defaults.
func NewLoader(policies *Registry, conditions *condition.Registry) *Loader {
	if policies == nil {
		policies = DefaultRegistry()
	}
	return &Loader{policies: policies, conditions: condition.NewLoader(conditions)}
}

var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// DefaultLoader returns a loader over the default registries.
func DefaultLoader() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = NewLoader(nil, nil)
	})
	return defaultLoader
}

// Registry returns the policy registry.
func (l *Loader) Registry() *Registry { return l.policies }

// Load builds a policy tree. Any failure is a *LoadError whose Path locates
// the offending node; unknown tags are never skipped.
func (l *Loader) Load(doc any) (Policy, error) {
	d, ok := doc.(map[string]any)
	if !ok {
		return nil, &LoadError{Message: "policy must be an object, got " + typeName(doc)}
	}

	raw, ok := d["type"]
	if !ok {
		return nil, &LoadError{Message: `missing "type"`}
	}
	tag, ok := raw.(string)
	if !ok {
		return nil, &LoadError{Path: "type", Message: "must be a string, got " + typeName(raw)}
	}
	factory, ok := l.policies.Factory(tag)
	if !ok {
		return nil, &LoadError{Path: "type", Message: fmt.Sprintf("unknown policy type %q", tag)}
	}

	config, at, err := configOf(d)
	if err != nil {
		return nil, err
	}
	p, err := factory(l, config)
	if err != nil {
		return nil, nest(err, at)
	}
	return p, nil
}

// LoadCondition builds a condition tree with the loader's condition
// registry.
func (l *Loader) LoadCondition(doc any) (condition.Condition, error) {
	return l.conditions.Load(doc)
}

// LoadJSON decodes and loads a JSON policy document.
func (l *Loader) LoadJSON(data []byte) (Policy, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "invalid JSON", Cause: err}
	}
	return l.Load(doc)
}

// LoadYAML decodes and loads a YAML policy document.
func (l *Loader) LoadYAML(data []byte) (Policy, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "invalid YAML", Cause: err}
	}
	return l.Load(doc)
}

// configOf returns the config object and the path segment it lives at.
func configOf(d Document) (Document, string, error) {
	raw, ok := d["config"]
	if !ok {
		flat := make(Document, len(d))
		for k, v := range d {
			if k != "type" {
				flat[k] = v
			}
		}
		return flat, "", nil
	}
	config, ok := raw.(map[string]any)
	if !ok {
		return nil, "", &LoadError{Path: "config", Message: "must be an object, got " + typeName(raw)}
	}
	return config, "config", nil
}
