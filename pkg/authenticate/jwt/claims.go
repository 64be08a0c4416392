package jwt

import (
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
)

type bookgate struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type privateClaims struct {
	Bookgate bookgate `json:"bookgate.io,omitempty"`
}

// Claims returns the public and private claim sets for a token issued to
// subject, suitable for Signer.GenerateToken.
func Claims(subject, name string, roles []string, expirationSeconds int64, audience []string) (*jwt.Claims, interface{}) {
	now := now()
	sc := &jwt.Claims{
		Subject:   subject,
		Audience:  jwt.Audience(audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(time.Duration(expirationSeconds) * time.Second)),
	}
	pc := &privateClaims{
		Bookgate: bookgate{
			Name:  name,
			Roles: roles,
		},
	}
	return sc, pc
}
