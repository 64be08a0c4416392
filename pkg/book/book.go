// Package book binds sessions on the spreadsheet engine to the lifetime of a
// single request. Bind opens a session and hands back an idempotent release
// function; the request pipeline defers it, so the session is closed on every
// exit path, including handler panics and client disconnects. A Book is
// exclusively owned by its request and must never outlive it.
package book

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookgate/bookgate/pkg/payload"
)

// releaseTimeout bounds the engine call that closes a session. Releases run
// on a detached context so request cancellation cannot skip them.
const releaseTimeout = 10 * time.Second

var releaseFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "bookgate_book_release_failures_total",
	Help: "Tracks book sessions whose release reported an error.",
})

func init() {
	prometheus.MustRegister(releaseFailures)
}

// Engine opens book sessions from canonical payload documents.
// Implementations must be safe for concurrent use; the returned Book is not
// and stays with one request.
type Engine interface {
	Open(ctx context.Context, doc payload.Document) (*Book, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, doc payload.Document) (*Book, error)

func (f EngineFunc) Open(ctx context.Context, doc payload.Document) (*Book, error) {
	return f(ctx, doc)
}

// Book is the handle to one open engine session.
type Book struct {
	id      string
	name    string
	doc     payload.Document
	closeFn func(context.Context) error
}

// New builds the handle for an open session. closeFn releases the session on
// the engine; engine wrappers chain it to add their own bookkeeping.
func New(id, name string, doc payload.Document, closeFn func(context.Context) error) *Book {
	return &Book{id: id, name: name, doc: doc, closeFn: closeFn}
}

// ID returns the engine's identifier for the session.
func (b *Book) ID() string { return b.id }

// Name returns the workbook name the session was opened for.
func (b *Book) Name() string { return b.name }

// Document returns the canonical payload the session was opened from.
func (b *Book) Document() payload.Document { return b.doc }

// Close releases the session on the engine. Callers that went through Bind
// use the returned ReleaseFunc instead and never call Close themselves.
func (b *Book) Close(ctx context.Context) error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn(ctx)
}

// ReleaseFunc releases the bound session. It may be called any number of
// times; the session is released exactly once.
type ReleaseFunc func()

// Bind opens a session for the document and couples it to the calling
// request. The caller defers the returned release function. Release errors
// are logged and counted, never returned, so they cannot override the
// handler's own outcome.
func Bind(ctx context.Context, logger log.Logger, engine Engine, doc payload.Document) (*Book, ReleaseFunc, error) {
	b, err := engine.Open(ctx, doc)
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := b.Close(ctx); err != nil {
				releaseFailures.Inc()
				level.Warn(logger).Log("msg", "book session release failed", "book", b.ID(), "err", err)
			}
		})
	}

	return b, release, nil
}
