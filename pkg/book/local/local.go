// Package local runs book sessions in process. It backs the gateway when no
// engine service is configured and keeps just enough per-session state to
// reject a release of a session it no longer owns.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
)

type Engine struct {
	logger log.Logger

	mu       sync.Mutex // protects sessions
	sessions map[string]string
}

func New(logger log.Logger) *Engine {
	return &Engine{
		logger:   log.With(logger, "component", "book/local"),
		sessions: make(map[string]string),
	}
}

// Open starts a session for the document's workbook.
func (e *Engine) Open(ctx context.Context, doc payload.Document) (*book.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	name := BookName(doc)

	e.mu.Lock()
	e.sessions[id] = name
	e.mu.Unlock()

	level.Debug(e.logger).Log("msg", "opened book session", "book", id, "name", name)

	return book.New(id, name, doc, func(context.Context) error {
		return e.release(id)
	}), nil
}

func (e *Engine) release(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[id]; !ok {
		return fmt.Errorf("book session %s already released", id)
	}
	delete(e.sessions, id)
	return nil
}

// OpenSessions returns the number of sessions not yet released.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// BookName extracts the workbook name from a canonical document. Documents
// without one address a new, unsaved workbook.
func BookName(doc payload.Document) string {
	if b, ok := doc["book"].(map[string]interface{}); ok {
		if name, ok := b["name"].(string); ok && name != "" {
			return name
		}
	}
	return "Book1"
}
