// Package oidc validates ID tokens minted by an OpenID Connect issuer.
// Issuer discovery and signature verification are delegated to
// github.com/coreos/go-oidc; this package maps the verified claims onto a
// principal.
package oidc

import (
	"context"
	"net/http"

	gooidc "github.com/coreos/go-oidc"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/bookgate/bookgate/pkg/authenticate"
)

// Config selects the issuer and how claims map onto the principal.
type Config struct {
	Issuer   string
	ClientID string
	// UsernameClaim is the claim carrying the display name,
	// preferred_username when empty.
	UsernameClaim string
	// RolesClaim is the claim carrying the role list, roles when empty.
	RolesClaim string
}

type Validator struct {
	logger        log.Logger
	verifier      *gooidc.IDTokenVerifier
	usernameClaim string
	rolesClaim    string
}

var _ = authenticate.TokenValidator(&Validator{})

// New runs issuer discovery and returns a validator for the issuer's ID
// tokens. The client, when given, carries the discovery and key set
// traffic so it can be instrumented like every other outbound connection.
func New(ctx context.Context, logger log.Logger, client *http.Client, cfg Config) (*Validator, error) {
	if client != nil {
		ctx = gooidc.ClientContext(ctx, client)
	}
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "OIDC provider initialization failed")
	}
	return NewWithVerifier(logger, provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

// NewWithVerifier skips discovery. Tests and deployments with static key
// material construct the verifier themselves.
func NewWithVerifier(logger log.Logger, verifier *gooidc.IDTokenVerifier, cfg Config) *Validator {
	usernameClaim := cfg.UsernameClaim
	if usernameClaim == "" {
		usernameClaim = "preferred_username"
	}
	rolesClaim := cfg.RolesClaim
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	return &Validator{
		logger:        log.With(logger, "component", "authenticate/oidc"),
		verifier:      verifier,
		usernameClaim: usernameClaim,
		rolesClaim:    rolesClaim,
	}
}

func (v *Validator) ValidateToken(ctx context.Context, credential string) (*authenticate.Principal, error) {
	raw := authenticate.BearerToken(credential)
	if raw == "" {
		return nil, errors.New("no token provided")
	}

	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		level.Debug(v.logger).Log("msg", "ID token rejected", "err", err)
		return nil, err
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "parsing ID token claims")
	}

	name, _ := claims[v.usernameClaim].(string)

	return &authenticate.Principal{
		ID:    idToken.Subject,
		Name:  name,
		Roles: stringList(claims[v.rolesClaim]),
	}, nil
}

func stringList(value interface{}) []string {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
