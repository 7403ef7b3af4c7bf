package control

import (
	"context"
	"strings"

	"mercator-hq/sluice/pkg/transaction"
)

// AuthenticateCaller verifies the caller's credential against the credential
// store and records the caller identity in side-data. It fails closed. On
// success the caller credential is consumed and removed from the request.
type AuthenticateCaller struct{}

// NewAuthenticateCaller creates the policy.
func NewAuthenticateCaller() *AuthenticateCaller { return &AuthenticateCaller{} }

// Name implements Policy.
func (a *AuthenticateCaller) Name() string { return KindAuthenticateCaller.String() }

// Kind implements Policy.
func (a *AuthenticateCaller) Kind() Kind { return KindAuthenticateCaller }

// Document implements Policy.
func (a *AuthenticateCaller) Document() Document { return document(KindAuthenticateCaller, nil) }

// Apply implements Policy.
func (a *AuthenticateCaller) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	fail := func(err error) (*transaction.Transaction, error) {
		env.logFailure(ctx, a, t, err)
		return t, err
	}

	if t.Request == nil {
		return fail(&AuthenticationError{Policy: a.Name(), Reason: "no request"})
	}
	value := callerCredential(t.Request)
	if value == "" {
		return fail(&AuthenticationError{Policy: a.Name(), Reason: "missing credential"})
	}
	if env.Credentials == nil {
		return fail(&ConfigurationError{Policy: a.Name(), Setting: "credentials", Message: "no credential store configured"})
	}

	cred, status, err := env.Credentials.Verify(ctx, value)
	if err != nil {
		if ctx.Err() != nil {
			return t, err
		}
		return fail(err)
	}
	switch status {
	case CredentialActive:
	case CredentialInactive:
		return fail(&AuthenticationError{Policy: a.Name(), Reason: "credential is inactive"})
	default:
		return fail(&AuthenticationError{Policy: a.Name(), Reason: "unknown credential"})
	}

	// The caller's gateway key is consumed here; only an injected backend
	// credential travels upstream.
	t.Request.Credential = ""
	t.Request.DelHeader("Authorization")

	data := sideData(t)
	data.Set(transaction.KeyCallerID, transaction.String(cred.ID))
	if cred.Team != "" {
		data.Set(transaction.KeyCallerTeam, transaction.String(cred.Team))
	}
	env.logger().DebugContext(ctx, "caller authenticated",
		"transaction_id", t.ID,
		"policy", a.Name(),
		"caller_id", cred.ID,
	)
	return t, nil
}

// callerCredential returns the request credential, falling back to a bearer
// Authorization header.
func callerCredential(req *transaction.Request) string {
	if req.Credential != "" {
		return req.Credential
	}
	header, ok := req.Header("Authorization")
	if !ok {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func loadAuthenticateCaller(_ *Loader, _ Document) (Policy, error) {
	return NewAuthenticateCaller(), nil
}
