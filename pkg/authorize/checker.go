// Package authorize decides whether an authenticated principal may use the
// service. It enforces the required role set and the provider's optional
// custom authorization hook.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bookgate/bookgate/pkg/authenticate"
)

// ErrNotAuthorized rejects a principal that failed its provider's custom
// authorization check. The detail stays generic so callers learn nothing
// about the policy that rejected them.
var ErrNotAuthorized = authenticate.NewErrorWithCode(errors.New("Auth error: Not authorized."), http.StatusForbidden)

// Authorizer is the custom authorization hook a provider may attach to its
// principal through the Data field.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}

// InsufficientRoleError reports the required roles a principal does not
// hold. Missing is sorted so the detail is stable for the same principal.
type InsufficientRoleError struct {
	Name    string
	Missing []string
}

func (e *InsufficientRoleError) Error() string {
	return fmt.Sprintf("Auth error: Missing roles for %s: %s", e.Name, strings.Join(e.Missing, ", "))
}

func (e *InsufficientRoleError) HTTPStatusCode() int {
	return http.StatusForbidden
}

// Checker enforces the access policy on authenticated principals.
type Checker struct {
	config authenticate.Config
}

func NewChecker(config authenticate.Config) *Checker {
	return &Checker{config: config}
}

// Admit applies the access policy to the principal. With no auth provider
// configured there is no policy and every principal is admitted. Role
// checks run first, then the principal's custom authorization hook.
func (c *Checker) Admit(ctx context.Context, principal *authenticate.Principal) error {
	if !c.config.Enabled() {
		return nil
	}

	if missing := c.missingRoles(principal); len(missing) > 0 {
		return &InsufficientRoleError{Name: principal.DisplayName(), Missing: missing}
	}

	if authorizer, ok := principal.Data.(Authorizer); ok {
		authorized, err := authorizer.Authorize(ctx)
		if err != nil {
			return authenticate.NewErrorWithCode(fmt.Errorf("authorization check: %w", err), http.StatusInternalServerError)
		}
		if !authorized {
			return ErrNotAuthorized
		}
	}

	return nil
}

func (c *Checker) missingRoles(principal *authenticate.Principal) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, role := range c.config.RequiredRoles() {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		if !principal.HasRole(role) {
			missing = append(missing, role)
		}
	}
	sort.Strings(missing)
	return missing
}
