// Package cache provides caching for token validation results.
package cache

import (
	"context"
	"encoding/json"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookgate/bookgate/pkg/authenticate"
)

// Cacher is able to get and set key value pairs.
type Cacher interface {
	Get(string) ([]byte, bool, error)
	Set(string, []byte) error
}

// TokenValidator caches successful validations, keyed by credential, so
// repeated requests skip the backing validator until the entry expires.
// Failed validations are never cached. Providers that attach live state to
// the principal's Data field must not be wrapped: the cache round-trips
// principals through JSON and Data comes back as plain decoded values.
type TokenValidator struct {
	c    Cacher
	next authenticate.TokenValidator

	l log.Logger

	// Metrics.
	cacheReadsTotal  *prometheus.CounterVec
	cacheWritesTotal *prometheus.CounterVec
}

// ValidateToken implements the authenticate.TokenValidator interface.
func (v *TokenValidator) ValidateToken(ctx context.Context, token string) (*authenticate.Principal, error) {
	raw, ok, err := v.c.Get(token)
	if err != nil {
		v.cacheReadsTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "failed to retrieve value from cache")
	}

	if ok {
		v.cacheReadsTotal.WithLabelValues("hit").Inc()
		principal := &authenticate.Principal{}
		if err := json.Unmarshal(raw, principal); err != nil {
			return nil, errors.Wrap(err, "failed to read cached principal")
		}
		return principal, nil
	}

	v.cacheReadsTotal.WithLabelValues("miss").Inc()
	principal, err := v.next.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	// Try to cache the principal but don't fail the request over it.
	raw, err = json.Marshal(principal)
	if err != nil {
		level.Error(v.l).Log("msg", "failed to marshal principal", "err", err)
		return principal, nil
	}
	if err := v.c.Set(token, raw); err != nil {
		v.cacheWritesTotal.WithLabelValues("error").Inc()
		level.Error(v.l).Log("msg", "failed to set value in cache", "err", err)
		return principal, nil
	}
	v.cacheWritesTotal.WithLabelValues("success").Inc()

	return principal, nil
}

// NewTokenValidator creates a new caching token validator in front of next.
func NewTokenValidator(c Cacher, next authenticate.TokenValidator, l log.Logger, reg prometheus.Registerer) *TokenValidator {
	v := &TokenValidator{
		c:    c,
		next: next,
		l:    l,
		cacheReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_reads_total",
				Help: "The number of read requests made to the cache.",
			}, []string{"result"},
		),
		cacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_writes_total",
				Help: "The number of write requests made to the cache.",
			}, []string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(v.cacheReadsTotal, v.cacheWritesTotal)
	}

	return v
}
