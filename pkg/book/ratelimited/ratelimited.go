package ratelimited

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bookgate/bookgate/pkg/authenticate"
	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
)

type ErrOpenLimited string

func (e ErrOpenLimited) Error() string {
	return fmt.Sprintf("open limit reached for principal %q", string(e))
}

func (e ErrOpenLimited) HTTPStatusCode() int {
	return http.StatusTooManyRequests
}

type lengine struct {
	limit time.Duration
	next  book.Engine

	mu     sync.Mutex // protects limits
	limits map[string]*rate.Limiter
}

// New returns an engine that wraps next and limits opens through it.
// Opens can happen at most at intervals specified by limit per principal,
// keyed by the principal in the request context. Requests without a
// principal share one anonymous bucket.
func New(limit time.Duration, next book.Engine) *lengine {
	return &lengine{
		limit:  limit,
		next:   next,
		limits: make(map[string]*rate.Limiter),
	}
}

func (e *lengine) Open(ctx context.Context, doc payload.Document) (*book.Book, error) {
	return e.open(ctx, doc, time.Now())
}

func (e *lengine) open(ctx context.Context, doc payload.Document, now time.Time) (*book.Book, error) {
	key := "anonymous"
	if principal, ok := authenticate.FromContext(ctx); ok {
		key = principal.ID
	}

	if limiter := e.limiter(key); !limiter.AllowN(now, 1) {
		return nil, ErrOpenLimited(key)
	}

	return e.next.Open(ctx, doc)
}

func (e *lengine) limiter(key string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	limiter, ok := e.limits[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(e.limit), 1)
		e.limits[key] = limiter
	}

	return limiter
}
