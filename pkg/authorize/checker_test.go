package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"testing"

	"github.com/bookgate/bookgate/pkg/authenticate"
)

type hook struct {
	authorized bool
	err        error
	calls      int
}

func (h *hook) Authorize(ctx context.Context) (bool, error) {
	h.calls++
	return h.authorized, h.err
}

func TestAdmitRoles(t *testing.T) {
	type checkFunc func(error) error

	admitted := func(err error) error {
		if err != nil {
			return fmt.Errorf("got %v, expected the principal to be admitted", err)
		}
		return nil
	}
	missingRolesAre := func(name string, roles ...string) checkFunc {
		return func(err error) error {
			var insufficient *InsufficientRoleError
			if !errors.As(err, &insufficient) {
				return fmt.Errorf("got %v, expected an insufficient role error", err)
			}
			if insufficient.Name != name {
				return fmt.Errorf("got name %q, expected %q", insufficient.Name, name)
			}
			if !reflect.DeepEqual(insufficient.Missing, roles) {
				return fmt.Errorf("got missing roles %v, expected %v", insufficient.Missing, roles)
			}
			if insufficient.HTTPStatusCode() != http.StatusForbidden {
				return fmt.Errorf("got status %d, expected %d", insufficient.HTTPStatusCode(), http.StatusForbidden)
			}
			return nil
		}
	}

	for _, tc := range []struct {
		name      string
		providers []string
		required  []string
		principal *authenticate.Principal
		check     checkFunc
	}{
		{
			name:      "no providers means no checks",
			required:  []string{"editor"},
			principal: authenticate.AnonymousPrincipal(),
			check:     admitted,
		},
		{
			name:      "no required roles",
			providers: []string{"okta"},
			principal: &authenticate.Principal{ID: "u1", Name: "Ada"},
			check:     admitted,
		},
		{
			name:      "all required roles held",
			providers: []string{"okta"},
			required:  []string{"editor", "viewer"},
			principal: &authenticate.Principal{ID: "u1", Name: "Ada", Roles: []string{"admin", "editor", "viewer"}},
			check:     admitted,
		},
		{
			name:      "enumerates exactly the missing roles",
			providers: []string{"okta"},
			required:  []string{"admin", "editor", "auditor"},
			principal: &authenticate.Principal{ID: "u1", Name: "Ada", Roles: []string{"editor"}},
			check:     missingRolesAre("Ada", "admin", "auditor"),
		},
		{
			name:      "repeated required roles count once",
			providers: []string{"okta"},
			required:  []string{"editor", "admin", "editor"},
			principal: &authenticate.Principal{ID: "u1", Name: "Ada"},
			check:     missingRolesAre("Ada", "admin", "editor"),
		},
		{
			name:      "display name falls back to the id",
			providers: []string{"okta"},
			required:  []string{"editor"},
			principal: &authenticate.Principal{ID: "u1"},
			check:     missingRolesAre("u1", "editor"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewChecker(authenticate.NewConfig(tc.providers, tc.required))
			if err := tc.check(checker.Admit(context.Background(), tc.principal)); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestAdmitRoleDetailIsStable(t *testing.T) {
	checker := NewChecker(authenticate.NewConfig([]string{"okta"}, []string{"auditor", "admin"}))
	principal := &authenticate.Principal{ID: "u1", Name: "Ada"}

	err := checker.Admit(context.Background(), principal)
	expected := "Auth error: Missing roles for Ada: admin, auditor"
	if err == nil || err.Error() != expected {
		t.Errorf("got %v, expected %q", err, expected)
	}
}

func TestAdmitCustomHook(t *testing.T) {
	config := authenticate.NewConfig([]string{"okta"}, nil)

	t.Run("authorized", func(t *testing.T) {
		h := &hook{authorized: true}
		principal := &authenticate.Principal{ID: "u1", Data: h}
		if err := NewChecker(config).Admit(context.Background(), principal); err != nil {
			t.Fatal(err)
		}
		if h.calls != 1 {
			t.Errorf("got %d hook calls, expected 1", h.calls)
		}
	})

	t.Run("rejected with a generic detail", func(t *testing.T) {
		principal := &authenticate.Principal{ID: "u1", Data: &hook{}}
		err := NewChecker(config).Admit(context.Background(), principal)
		if !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("got %v, expected %v", err, ErrNotAuthorized)
		}
		if err.Error() != "Auth error: Not authorized." {
			t.Errorf("got detail %q, expected it generic", err.Error())
		}
	})

	t.Run("hook errors surface as server errors", func(t *testing.T) {
		hookErr := errors.New("directory unavailable")
		principal := &authenticate.Principal{ID: "u1", Data: &hook{err: hookErr}}
		err := NewChecker(config).Admit(context.Background(), principal)
		if !errors.Is(err, hookErr) {
			t.Fatalf("got %v, expected the hook error to be kept", err)
		}
		var coded authenticate.ErrorWithCode
		if !errors.As(err, &coded) || coded.HTTPStatusCode() != http.StatusInternalServerError {
			t.Errorf("got %v, expected an internal server error code", err)
		}
	})

	t.Run("roles are checked before the hook", func(t *testing.T) {
		h := &hook{}
		checker := NewChecker(authenticate.NewConfig([]string{"okta"}, []string{"editor"}))
		principal := &authenticate.Principal{ID: "u1", Data: h}
		err := checker.Admit(context.Background(), principal)
		var insufficient *InsufficientRoleError
		if !errors.As(err, &insufficient) {
			t.Fatalf("got %v, expected an insufficient role error", err)
		}
		if h.calls != 0 {
			t.Errorf("got %d hook calls, expected none", h.calls)
		}
	})

	t.Run("principals without a hook are admitted", func(t *testing.T) {
		principal := &authenticate.Principal{ID: "u1", Data: map[string]string{"tenant": "t1"}}
		if err := NewChecker(config).Admit(context.Background(), principal); err != nil {
			t.Fatal(err)
		}
	})
}
