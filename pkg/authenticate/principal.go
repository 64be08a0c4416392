package authenticate

import (
	"context"
)

// Principal is the identity a token validator resolved for a request.
type Principal struct {
	ID        string
	Name      string
	Roles     []string
	IPAddress string
	// Data carries provider specific state, for example a session the
	// provider's authorization hook needs later.
	Data interface{}
}

// AnonymousPrincipal is the identity used when no auth provider is
// configured. It carries no roles and skips all access checks.
func AnonymousPrincipal() *Principal {
	return &Principal{ID: "n/a", Name: "Anonymous"}
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DisplayName returns the name used in user facing messages.
func (p *Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

var principalKey key

type key int

// WithPrincipal puts the principal into the given context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// FromContext returns the principal from the context.
func FromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalKey).(*Principal)
	return principal, ok
}
