// Package jwt validates locally issued signed tokens. Signatures are
// checked against a set of public keys to allow rotation; issuer, expiry
// and audience come from the public claims, display name and roles from
// the private claim set.
package jwt

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/bookgate/bookgate/pkg/authenticate"
)

// NewValidator authenticates tokens produced by Signer or any issuer
// sharing the key material. Token signatures are verified using each of
// the given public keys until one works.
func NewValidator(logger log.Logger, issuer string, audiences []string, keys []crypto.PublicKey) *Validator {
	return &Validator{
		logger: log.With(logger, "component", "authenticate/jwt"),
		iss:    issuer,
		auds:   audiences,
		keys:   keys,
	}
}

type Validator struct {
	logger log.Logger
	iss    string
	auds   []string
	keys   []crypto.PublicKey
}

var _ = authenticate.TokenValidator(&Validator{})

func (v *Validator) ValidateToken(_ context.Context, credential string) (*authenticate.Principal, error) {
	tokenData := authenticate.BearerToken(credential)
	if tokenData == "" {
		return nil, errors.New("no token provided")
	}

	tok, err := jwt.ParseSigned(tokenData)
	if err != nil {
		return nil, err
	}

	public := &jwt.Claims{}
	private := &privateClaims{}

	var (
		found bool
		errs  []error
	)
	for _, key := range v.keys {
		if err := tok.Claims(key, public, private); err != nil {
			errs = append(errs, err)
			continue
		}
		found = true
		break
	}

	if !found {
		return nil, multipleErrors(errs)
	}

	if public.Issuer != v.iss {
		return nil, fmt.Errorf("invalid JWT issuer, expected %q, got %q", v.iss, public.Issuer)
	}

	err = public.Validate(jwt.Expected{
		Time: now(),
	})
	switch {
	case err == nil:
	case err == jwt.ErrExpired:
		return nil, errors.New("token has expired")
	default:
		level.Info(v.logger).Log("msg", "unexpected validation", "err", err)
		return nil, errors.New("token could not be validated")
	}

	var audValid bool

	for _, aud := range v.auds {
		audValid = public.Audience.Contains(aud)
		if audValid {
			break
		}
	}

	if !audValid {
		return nil, errors.New("token is invalid for this audience")
	}

	return &authenticate.Principal{
		ID:    public.Subject,
		Name:  private.Bookgate.Name,
		Roles: private.Bookgate.Roles,
	}, nil
}
