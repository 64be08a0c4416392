// Package static validates credentials against a fixed token table,
// typically read from a JSON file at startup. It exists for development
// setups and for deployments where tokens are provisioned out of band.
package static

import (
	"context"
	"encoding/json"
	"io/ioutil"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/bookgate/bookgate/pkg/authenticate"
	"github.com/bookgate/bookgate/pkg/fnv"
)

// TokenEntry is one row of the token table. Subject and Name are optional;
// a missing subject falls back to a fingerprint of the token so the
// principal id stays stable without leaking the credential.
type TokenEntry struct {
	Token   string   `json:"token"`
	Subject string   `json:"subject,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

type Validator struct {
	logger log.Logger
	tokens map[string]TokenEntry
}

var _ = authenticate.TokenValidator(&Validator{})

func New(logger log.Logger, entries []TokenEntry) *Validator {
	tokens := make(map[string]TokenEntry, len(entries))
	for _, e := range entries {
		tokens[e.Token] = e
	}
	return &Validator{
		logger: log.With(logger, "component", "authenticate/static"),
		tokens: tokens,
	}
}

// NewFromFile reads a JSON array of token entries from path.
func NewFromFile(logger log.Logger, path string) (*Validator, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading token file")
	}
	var entries []TokenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "parsing token file %s", path)
	}
	return New(logger, entries), nil
}

func (v *Validator) ValidateToken(ctx context.Context, credential string) (*authenticate.Principal, error) {
	token := authenticate.BearerToken(credential)
	if token == "" {
		return nil, errors.New("no token provided")
	}

	entry, ok := v.tokens[token]
	if !ok {
		return nil, errors.New("invalid token")
	}

	subject := entry.Subject
	if subject == "" {
		subject = fnv.Fingerprint(token)
	}
	level.Debug(v.logger).Log("msg", "token accepted", "subject", subject)

	roles := make([]string, len(entry.Roles))
	copy(roles, entry.Roles)

	return &authenticate.Principal{
		ID:    subject,
		Name:  entry.Name,
		Roles: roles,
	}, nil
}
