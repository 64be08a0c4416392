// Package instrumented wraps a book engine with prometheus metrics.
package instrumented

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
)

type Engine struct {
	next book.Engine

	// Metrics.
	opensTotal    *prometheus.CounterVec
	releasesTotal *prometheus.CounterVec
	booksOpen     prometheus.Gauge
}

// New returns an engine that counts opens and releases on the way through
// to next and tracks how many books are currently held open.
func New(next book.Engine, reg prometheus.Registerer) *Engine {
	e := &Engine{
		next: next,
		opensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookgate_book_opens_total",
				Help: "The number of book open requests made to the engine.",
			}, []string{"result"},
		),
		releasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookgate_book_releases_total",
				Help: "The number of book releases made to the engine.",
			}, []string{"result"},
		),
		booksOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookgate_books_open",
				Help: "The number of books currently held open.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(e.opensTotal, e.releasesTotal, e.booksOpen)
	}

	return e
}

func (e *Engine) Open(ctx context.Context, doc payload.Document) (*book.Book, error) {
	b, err := e.next.Open(ctx, doc)
	if err != nil {
		e.opensTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	e.opensTotal.WithLabelValues("success").Inc()
	e.booksOpen.Inc()

	return book.New(b.ID(), b.Name(), b.Document(), func(ctx context.Context) error {
		e.booksOpen.Dec()
		if err := b.Close(ctx); err != nil {
			e.releasesTotal.WithLabelValues("error").Inc()
			return err
		}
		e.releasesTotal.WithLabelValues("success").Inc()
		return nil
	}), nil
}
