package control

import (
	"context"
	"errors"

	"mercator-hq/sluice/pkg/transaction"
)

// BackendKeyField is the field of a configuration document holding the
// backend API key.
const BackendKeyField = "api_key"

// InjectBackendCredential replaces the request credential with the backend
// key. A literal credential wins over a named configuration document. It
// fails with a ConfigurationError when no key resolves.
type InjectBackendCredential struct {
	credential string
	configName string
}

// NewInjectBackendCredential creates the policy. Either argument may be empty.
func NewInjectBackendCredential(credential, configName string) *InjectBackendCredential {
	return &InjectBackendCredential{credential: credential, configName: configName}
}

// Name implements Policy.
func (p *InjectBackendCredential) Name() string { return KindInjectBackendCredential.String() }

// Kind implements Policy.
func (p *InjectBackendCredential) Kind() Kind { return KindInjectBackendCredential }

// Document implements Policy.
func (p *InjectBackendCredential) Document() Document {
	config := Document{}
	if p.credential != "" {
		config["credential"] = p.credential
	}
	if p.configName != "" {
		config["config_name"] = p.configName
	}
	return document(KindInjectBackendCredential, config)
}

// Apply implements Policy.
func (p *InjectBackendCredential) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if t.Request == nil {
		err := &ConfigurationError{Policy: p.Name(), Message: "no request to inject a credential into"}
		env.logFailure(ctx, p, t, err)
		return t, err
	}

	key, err := p.resolve(ctx, env)
	if err != nil {
		if ctx.Err() == nil {
			env.logFailure(ctx, p, t, err)
		}
		return t, err
	}

	t.Request.Credential = key
	t.Request.SetHeader("Authorization", "Bearer "+key)
	return t, nil
}

func (p *InjectBackendCredential) resolve(ctx context.Context, env *Env) (string, error) {
	if p.credential != "" {
		return p.credential, nil
	}
	if p.configName == "" {
		return "", &ConfigurationError{Policy: p.Name(), Setting: "credential", Message: "no backend credential configured"}
	}
	if env.Configs == nil {
		return "", &ConfigurationError{Policy: p.Name(), Setting: "config_name", Message: "no configuration store configured"}
	}

	doc, err := env.Configs.Fetch(ctx, p.configName)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		return "", &ConfigurationError{Policy: p.Name(), Setting: "config_name", Message: "configuration " + p.configName + " not found", Cause: err}
	case err != nil:
		if ctx.Err() != nil {
			return "", err
		}
		return "", &ConfigurationError{Policy: p.Name(), Setting: "config_name", Message: "fetch configuration " + p.configName, Cause: err}
	}

	key, _ := doc[BackendKeyField].(string)
	if key == "" {
		return "", &ConfigurationError{Policy: p.Name(), Setting: "config_name", Message: "configuration " + p.configName + " has no " + BackendKeyField}
	}
	return key, nil
}

func loadInjectBackendCredential(_ *Loader, config Document) (Policy, error) {
	credential, err := optionalString(config, "credential")
	if err != nil {
		return nil, err
	}
	configName, err := optionalString(config, "config_name")
	if err != nil {
		return nil, err
	}
	return NewInjectBackendCredential(credential, configName), nil
}
