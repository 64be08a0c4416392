package authenticate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
)

type admitterFunc func(ctx context.Context, principal *Principal) error

func (f admitterFunc) Admit(ctx context.Context, principal *Principal) error {
	return f(ctx, principal)
}

func admitAll(context.Context, *Principal) error { return nil }

func TestClientAddr(t *testing.T) {
	for _, tc := range []struct {
		name       string
		forwarded  string
		remoteAddr string
		addr       string
	}{
		{
			name:       "forwarded chain wins over the peer",
			forwarded:  "203.0.113.7, 10.0.0.1, 10.0.0.2",
			remoteAddr: "10.0.0.2:44321",
			addr:       "203.0.113.7",
		},
		{
			name:       "single forwarded entry",
			forwarded:  "203.0.113.7",
			remoteAddr: "10.0.0.2:44321",
			addr:       "203.0.113.7",
		},
		{
			name:       "peer host without the port",
			remoteAddr: "192.0.2.9:58213",
			addr:       "192.0.2.9",
		},
		{
			name:       "peer without a port is kept as is",
			remoteAddr: "192.0.2.9",
			addr:       "192.0.2.9",
		},
		{
			name: "no peer",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "https://bookgate", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if addr := ClientAddr(req); addr != tc.addr {
				t.Errorf("got %q, expected %q", addr, tc.addr)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	principal := &Principal{ID: "u1", Name: "Ada", Roles: []string{"editor"}}
	validators := map[string]TokenValidator{
		"okta": TokenValidatorFunc(func(_ context.Context, token string) (*Principal, error) {
			if token != "Bearer good" {
				return nil, errors.New("unrecognized credential")
			}
			return principal, nil
		}),
		"broken": TokenValidatorFunc(func(context.Context, string) (*Principal, error) {
			return nil, ErrNotImplemented
		}),
	}

	type checkFunc func(*httptest.ResponseRecorder) error

	responseCodeIs := func(code int) checkFunc {
		return func(rec *httptest.ResponseRecorder) error {
			if got := rec.Code; got != code {
				return fmt.Errorf("want HTTP response code %d, got %d", code, got)
			}
			return nil
		}
	}
	bodyContains := func(detail string) checkFunc {
		return func(rec *httptest.ResponseRecorder) error {
			if !strings.Contains(rec.Body.String(), detail) {
				return fmt.Errorf("want body containing %q, got %q", detail, rec.Body.String())
			}
			return nil
		}
	}
	all := func(checks ...checkFunc) checkFunc {
		return func(rec *httptest.ResponseRecorder) error {
			for _, check := range checks {
				if err := check(rec); err != nil {
					return err
				}
			}
			return nil
		}
	}

	for _, tc := range []struct {
		name      string
		providers []string
		headers   map[string]string
		admitter  Admitter
		check     checkFunc
	}{
		{
			name:  "anonymous mode admits without credentials",
			check: responseCodeIs(200),
		},
		{
			name:      "valid credential",
			providers: []string{"okta"},
			headers:   map[string]string{"Authorization": "Bearer good"},
			check:     responseCodeIs(200),
		},
		{
			name:      "invalid credential",
			providers: []string{"okta"},
			headers:   map[string]string{"Authorization": "Bearer bad"},
			check:     all(responseCodeIs(401), bodyContains("unrecognized credential")),
		},
		{
			name:      "multiple providers without a hint",
			providers: []string{"okta", "broken"},
			headers:   map[string]string{"Authorization": "Bearer good"},
			check:     all(responseCodeIs(400), bodyContains("Auth-Provider")),
		},
		{
			name:      "unknown provider hint",
			providers: []string{"okta", "broken"},
			headers:   map[string]string{"Authorization": "Bearer good", ProviderHeader: "github"},
			check:     responseCodeIs(400),
		},
		{
			name:      "provider implementation missing",
			providers: []string{"okta", "broken"},
			headers:   map[string]string{"Authorization": "Bearer good", ProviderHeader: "broken"},
			check:     all(responseCodeIs(500), bodyContains("auth provider implementation missing")),
		},
		{
			name:      "admitter rejections carry their status",
			providers: []string{"okta"},
			headers:   map[string]string{"Authorization": "Bearer good"},
			admitter: admitterFunc(func(context.Context, *Principal) error {
				return NewErrorWithCode(errors.New("Auth error: Not authorized."), http.StatusForbidden)
			}),
			check: all(responseCodeIs(403), bodyContains("Not authorized")),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			admitter := tc.admitter
			if admitter == nil {
				admitter = admitterFunc(admitAll)
			}
			auth := New(log.NewNopLogger(), NewConfig(tc.providers, nil), NewRegistry(validators))
			h := NewHandler(log.NewNopLogger(), auth, admitter, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if _, ok := FromContext(req.Context()); !ok {
					http.Error(w, "no principal in context", http.StatusInternalServerError)
					return
				}
			}))

			req := httptest.NewRequest(http.MethodPost, "https://bookgate/api/v1/book", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if err := tc.check(rec); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestHandlerEnrichesBeforeAdmission(t *testing.T) {
	var admitted *Principal
	admitter := admitterFunc(func(_ context.Context, principal *Principal) error {
		admitted = principal
		return nil
	})

	auth := New(log.NewNopLogger(), NewConfig(nil, nil), NewRegistry(nil))
	h := NewHandler(log.NewNopLogger(), auth, admitter, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "https://bookgate/api/v1/book", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if admitted == nil {
		t.Fatal("expected the admitter to run")
	}
	if admitted.IPAddress != "203.0.113.7" {
		t.Errorf("got %q, expected the forwarded address before admission", admitted.IPAddress)
	}
}
