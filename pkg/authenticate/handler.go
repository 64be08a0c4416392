package authenticate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ProviderHeader names the provider a request wants to authenticate
// against when more than one is configured.
const ProviderHeader = "Auth-Provider"

type errorWithCode struct {
	error
	code int
}

// ErrorWithCode is an error that carries the HTTP status it should be
// reported with. Provider implementations return it when the default
// mapping would pick the wrong status.
type ErrorWithCode interface {
	error
	HTTPStatusCode() int
}

func NewErrorWithCode(err error, code int) ErrorWithCode {
	return errorWithCode{error: err, code: code}
}

func (e errorWithCode) HTTPStatusCode() int {
	return e.code
}

func (e errorWithCode) Unwrap() error {
	return e.error
}

// Admitter decides whether an authenticated principal may proceed.
// pkg/authorize implements it with role and custom authorization checks.
type Admitter interface {
	Admit(ctx context.Context, principal *Principal) error
}

// BearerToken extracts the token from an Authorization header value.
// A case-insensitive Bearer scheme prefix is stripped when present; bare
// tokens come back trimmed. Providers with bearer semantics call this,
// providers with their own credential scheme read the raw value instead.
func BearerToken(credential string) string {
	parts := strings.SplitN(strings.TrimSpace(credential), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(credential)
}

// ClientAddr returns the caller's address, preferring the first entry of
// the X-Forwarded-For header over the transport peer. It returns the empty
// string when neither is known.
func ClientAddr(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if req.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// NewHandler returns a handler that admits requests through the identity
// chain before handing them to next. The credential is the raw
// Authorization header value, passed through to the selected provider. The
// admitted principal, enriched with the caller's address, is attached to
// the request context.
func NewHandler(logger log.Logger, auth *Authenticator, admitter Admitter, next http.Handler) http.Handler {
	logger = log.With(logger, "component", "authenticate")

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rlogger := log.With(logger, "request", middleware.GetReqID(req.Context()))

		principal, err := auth.Authenticate(req.Context(), req.Header.Get("Authorization"), req.Header.Get(ProviderHeader))
		if err != nil {
			writeError(w, rlogger, err)
			return
		}

		principal.IPAddress = ClientAddr(req)

		if err := admitter.Admit(req.Context(), principal); err != nil {
			writeError(w, rlogger, err)
			return
		}

		next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), principal)))
	})
}

func writeError(w http.ResponseWriter, logger log.Logger, err error) {
	if errors.Is(err, ErrAmbiguousProvider) || errors.Is(err, ErrUnknownProvider) {
		level.Debug(logger).Log("msg", "rejecting request", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, ErrProviderImplementationMissing) || errors.Is(err, ErrInvalidProviderState) {
		// Cause already logged with full detail where it was detected.
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var coded ErrorWithCode
	if errors.As(err, &coded) {
		level.Warn(logger).Log("msg", "rejecting request", "err", err)
		http.Error(w, err.Error(), coded.HTTPStatusCode())
		return
	}
	level.Warn(logger).Log("msg", "not authenticated", "err", err)
	http.Error(w, err.Error(), http.StatusUnauthorized)
}
