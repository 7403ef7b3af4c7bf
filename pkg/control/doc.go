// Package control implements the gateway's policy pipeline.
//
// A pipeline is a tree of Policy values built from a declarative document by
// a Loader. Composite policies arrange other policies: Serial applies its
// members in order and halts at the first failure; Branching applies the
// policy of the first branch whose condition holds. Leaf policies perform a
// single action such as authenticating the caller, scanning for leaked
// secrets or dispatching to the backend.
//
// # Errors
//
// Leaves fail with one of a closed set of error types (ConfigurationError,
// AuthenticationError, ContentPolicyViolation, UpstreamTransportError) and
// the Loader fails with LoadError. Composites never catch or rewrap member
// errors. KindOf classifies any error for the orchestrator, and each type
// matches its sentinel (ErrAuthentication, ...) with errors.Is.
//
// # Collaborators
//
// Policies reach the outside world only through Env: a CredentialStore, a
// ConfigStore and a BackendClient, plus a logger and an optional Observer.
// Env is supplied per call, so a loaded tree can be shared by every
// concurrent request.
//
// Example:
//
//	root, err := control.DefaultLoader().LoadYAML(data)
//	if err != nil {
//		return err
//	}
//	t := transaction.New(req)
//	t, err = control.Apply(ctx, root, t, &control.Env{
//		Credentials: store,
//		Backend:     backend,
//		Logger:      logger,
//	})
package control
