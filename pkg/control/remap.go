package control

import (
	"context"

	"mercator-hq/sluice/pkg/transaction"
)

// RemapModel rewrites the requested model through a fixed mapping. Models
// without a mapping pass through untouched.
type RemapModel struct {
	mapping map[string]string
}

// NewRemapModel creates the policy.
func NewRemapModel(mapping map[string]string) *RemapModel {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &RemapModel{mapping: m}
}

// Name implements Policy.
func (r *RemapModel) Name() string { return KindRemapModel.String() }

// Kind implements Policy.
func (r *RemapModel) Kind() Kind { return KindRemapModel }

// Document implements Policy.
func (r *RemapModel) Document() Document {
	return document(KindRemapModel, Document{"mapping": stringMapDocument(r.mapping)})
}

// Apply implements Policy.
func (r *RemapModel) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if t.Request == nil || t.Request.Payload == nil {
		return t, nil
	}
	model, ok := t.Request.Payload["model"].(string)
	if !ok {
		return t, nil
	}
	mapped, ok := r.mapping[model]
	if !ok || mapped == model {
		return t, nil
	}

	t.Request.Payload["model"] = mapped
	data := sideData(t)
	data.Set(transaction.KeyModelOriginal, transaction.String(model))
	data.Set(transaction.KeyModelMapped, transaction.String(mapped))
	env.logger().DebugContext(ctx, "model remapped",
		"transaction_id", t.ID,
		"policy", r.Name(),
		"from", model,
		"to", mapped,
	)
	return t, nil
}

func loadRemapModel(_ *Loader, config Document) (Policy, error) {
	mapping, err := stringMap(config, "mapping")
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, &LoadError{Message: `missing "mapping"`}
	}
	return NewRemapModel(mapping), nil
}
