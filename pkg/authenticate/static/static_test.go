package static

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-kit/log"

	"github.com/bookgate/bookgate/pkg/fnv"
)

func TestValidateToken(t *testing.T) {
	v := New(log.NewNopLogger(), []TokenEntry{
		{Token: "secret-a", Subject: "user-a", Name: "Ada", Roles: []string{"editor", "viewer"}},
		{Token: "secret-b"},
	})

	for _, tc := range []struct {
		name       string
		credential string
		id         string
		pname      string
		roles      []string
		wantErr    bool
	}{
		{
			name:       "known token",
			credential: "secret-a",
			id:         "user-a",
			pname:      "Ada",
			roles:      []string{"editor", "viewer"},
		},
		{
			name:       "bearer prefix is stripped",
			credential: "Bearer secret-a",
			id:         "user-a",
			pname:      "Ada",
			roles:      []string{"editor", "viewer"},
		},
		{
			name:       "scheme check is case insensitive",
			credential: "bearer secret-a",
			id:         "user-a",
			pname:      "Ada",
			roles:      []string{"editor", "viewer"},
		},
		{
			name:       "subject falls back to the token fingerprint",
			credential: "secret-b",
			id:         fnv.Fingerprint("secret-b"),
			roles:      []string{},
		},
		{
			name:       "unknown token",
			credential: "secret-c",
			wantErr:    true,
		},
		{
			name:       "empty credential",
			credential: "",
			wantErr:    true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			principal, err := v.ValidateToken(context.Background(), tc.credential)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if principal.ID != tc.id {
				t.Errorf("got id %q, want %q", principal.ID, tc.id)
			}
			if principal.Name != tc.pname {
				t.Errorf("got name %q, want %q", principal.Name, tc.pname)
			}
			if !reflect.DeepEqual(principal.Roles, tc.roles) {
				t.Errorf("got roles %v, want %v", principal.Roles, tc.roles)
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	content := `[{"token":"secret","subject":"svc","roles":["editor"]}]`
	if err := ioutil.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	v, err := NewFromFile(log.NewNopLogger(), path)
	if err != nil {
		t.Fatalf("new from file: %v", err)
	}

	principal, err := v.ValidateToken(context.Background(), "secret")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if principal.ID != "svc" {
		t.Errorf("got id %q, want svc", principal.ID)
	}

	if _, err := NewFromFile(log.NewNopLogger(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
