// Package authenticate resolves the identity of inbound requests. A request
// names at most one of the configured auth providers; the package selects
// the provider, dispatches the credential to its token validator and
// enriches the resulting principal with the caller's address. Role and
// custom authorization checks live in pkg/authorize.
package authenticate

import (
	"context"
	"errors"

	"github.com/go-chi/chi/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// TokenValidator resolves an opaque credential to a principal. The
// credential is the raw Authorization header value; implementations own its
// scheme, including stripping a Bearer prefix where they expect one.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Principal, error)
}

// TokenValidatorFunc adapts a function to the TokenValidator interface.
type TokenValidatorFunc func(ctx context.Context, token string) (*Principal, error)

func (f TokenValidatorFunc) ValidateToken(ctx context.Context, token string) (*Principal, error) {
	return f(ctx, token)
}

var (
	// ErrAmbiguousProvider is returned when several providers are
	// configured and the request does not name one.
	ErrAmbiguousProvider = errors.New("with multiple auth providers, you need to provide the Auth-Provider header")

	// ErrUnknownProvider is returned when the request names a provider
	// outside the configured set.
	ErrUnknownProvider = errors.New("the Auth-Provider header wasn't found in the configured auth providers")

	// ErrInvalidProviderState reports that a selected provider failed the
	// final membership re-check. Selection already guarantees membership,
	// so hitting this means the selection result was corrupted on the way
	// to dispatch.
	ErrInvalidProviderState = errors.New("selected auth provider is not configured")

	// ErrProviderImplementationMissing is the caller facing translation of
	// a configured provider without a working validator. The specific
	// cause is logged server side only.
	ErrProviderImplementationMissing = errors.New("auth provider implementation missing")

	// ErrNotImplemented marks a provider module that does not implement
	// token validation. Validators return it to have the dispatcher
	// translate it into ErrProviderImplementationMissing.
	ErrNotImplemented = errors.New("token validation not implemented")
)

// Registry holds the token validators for the configured providers, keyed
// by provider name. It is assembled once at startup.
type Registry struct {
	validators map[string]TokenValidator
}

func NewRegistry(validators map[string]TokenValidator) *Registry {
	r := &Registry{validators: make(map[string]TokenValidator, len(validators))}
	for name, v := range validators {
		r.validators[name] = v
	}
	return r
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (TokenValidator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

// SelectProvider picks the provider responsible for a request. hint is the
// caller supplied Auth-Provider header, empty when absent. An empty name
// with a nil error means no provider is configured and the request proceeds
// anonymously.
func SelectProvider(cfg Config, hint string) (string, error) {
	switch {
	case !cfg.Enabled():
		return "", nil
	case len(cfg.providers) == 1:
		// A single configured provider is authoritative, the hint is
		// ignored even when it names something else.
		return cfg.providers[0], nil
	case hint == "":
		return "", ErrAmbiguousProvider
	case !cfg.HasProvider(hint):
		return "", ErrUnknownProvider
	default:
		return hint, nil
	}
}

// Authenticator dispatches credential validation to the provider selected
// for each request.
type Authenticator struct {
	logger   log.Logger
	config   Config
	registry *Registry
}

func New(logger log.Logger, config Config, registry *Registry) *Authenticator {
	return &Authenticator{
		logger:   log.With(logger, "component", "authenticate"),
		config:   config,
		registry: registry,
	}
}

// Authenticate resolves the provider for the request and validates the
// credential against it. With no providers configured it returns the
// anonymous principal without touching the credential.
func (a *Authenticator) Authenticate(ctx context.Context, token, hint string) (*Principal, error) {
	name, err := SelectProvider(a.config, hint)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return AnonymousPrincipal(), nil
	}

	rlogger := log.With(a.logger, "request", middleware.GetReqID(ctx))
	level.Info(rlogger).Log("msg", "using auth provider", "provider", name)

	// The audit log above is not a validity check. Re-check membership so
	// no path can dispatch a name outside the configured set.
	if !a.config.HasProvider(name) {
		level.Error(rlogger).Log("msg", "selected auth provider failed the configuration re-check", "provider", name)
		return nil, ErrInvalidProviderState
	}

	validator, ok := a.registry.Lookup(name)
	if !ok {
		level.Error(rlogger).Log("msg", "auth provider has no registered validator", "provider", name)
		return nil, ErrProviderImplementationMissing
	}

	principal, err := validator.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotImplemented) {
			level.Error(rlogger).Log("msg", "auth provider does not implement token validation", "provider", name, "err", err)
			return nil, ErrProviderImplementationMissing
		}
		return nil, err
	}
	return principal, nil
}
