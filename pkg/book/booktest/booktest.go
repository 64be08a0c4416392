// Package booktest provides a recording engine for tests that assert on
// session lifecycles.
package booktest

import (
	"context"
	"strconv"
	"sync"

	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
)

// Engine records every open and release. The zero value is ready to use.
type Engine struct {
	// OpenErr, when set, fails every Open without recording a session.
	OpenErr error
	// CloseErr, when set, is returned by every release. The release is
	// still recorded.
	CloseErr error

	mu       sync.Mutex
	opens    int
	releases int
	docs     []payload.Document
}

func (e *Engine) Open(ctx context.Context, doc payload.Document) (*book.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}

	e.mu.Lock()
	e.opens++
	id := "session-" + strconv.Itoa(e.opens)
	e.docs = append(e.docs, doc)
	e.mu.Unlock()

	return book.New(id, "test.xlsx", doc, func(context.Context) error {
		e.mu.Lock()
		e.releases++
		e.mu.Unlock()
		return e.CloseErr
	}), nil
}

// Opens returns the number of sessions opened so far.
func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

// Releases returns the number of session releases so far.
func (e *Engine) Releases() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releases
}

// Documents returns the payloads sessions were opened from, in order.
func (e *Engine) Documents() []payload.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs := make([]payload.Document, len(e.docs))
	copy(docs, e.docs)
	return docs
}
