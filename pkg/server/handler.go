package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/bookgate/bookgate/pkg/authenticate"
	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
	"github.com/bookgate/bookgate/pkg/reader"
)

// BookHandlerFunc is one exec operation: it runs with the bound book and
// the admitted principal and returns the reply to serialize. The principal
// is nil when the handler is served outside the identity chain.
type BookHandlerFunc func(ctx context.Context, b *book.Book, principal *authenticate.Principal) (interface{}, error)

// NewBookHandler returns a handler that binds a book for each request and
// runs fn against it. The payload comes from the request per
// payload.ParseRequest; the book is released on every exit path, including
// panics in fn and client disconnects. Errors from fn that carry an HTTP
// status are reported with it, everything else is hidden behind a generic
// 500 and logged server side.
func NewBookHandler(logger log.Logger, engine book.Engine, limitBytes int64, fn BookHandlerFunc) http.HandlerFunc {
	logger = log.With(logger, "component", "server")

	return func(w http.ResponseWriter, r *http.Request) {
		rlogger := log.With(logger, "request", middleware.GetReqID(r.Context()))

		if r.Method != http.MethodPost {
			http.Error(w, "Only POST is allowed to this endpoint", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		if limitBytes > 0 {
			r.Body = reader.NewLimitReadCloser(r.Body, limitBytes)
		}

		doc, err := payload.ParseRequest(r)
		if err != nil {
			writePayloadError(w, rlogger, err)
			return
		}

		b, release, err := book.Bind(r.Context(), rlogger, engine, doc)
		if err != nil {
			writeHandlerError(w, rlogger, err)
			return
		}
		defer release()

		principal, _ := authenticate.FromContext(r.Context())

		reply, err := fn(r.Context(), b, principal)
		if err != nil {
			writeHandlerError(w, rlogger, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			level.Error(rlogger).Log("msg", "writing response failed", "err", err)
		}
	}
}

func writePayloadError(w http.ResponseWriter, logger log.Logger, err error) {
	if errors.Is(err, reader.ErrTooLong) {
		level.Warn(logger).Log("msg", "rejecting book payload", "err", err)
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	level.Debug(logger).Log("msg", "rejecting book payload", "err", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeHandlerError(w http.ResponseWriter, logger log.Logger, err error) {
	var coded authenticate.ErrorWithCode
	if errors.As(err, &coded) {
		if coded.HTTPStatusCode() >= http.StatusInternalServerError {
			level.Error(logger).Log("msg", "request failed", "err", err)
		}
		if coded.HTTPStatusCode() == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "300")
		}
		http.Error(w, coded.Error(), coded.HTTPStatusCode())
		return
	}

	// always hide internal errors from the client
	uid := rand.Int63()
	level.Error(logger).Log("msg", fmt.Sprintf("unable to process request %d: %v", uid, err))
	http.Error(w, fmt.Sprintf("Internal server error, requestid=%d", uid), http.StatusInternalServerError)
}

// DescribeReply is the reply of the built-in describe operation.
type DescribeReply struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	User string `json:"user,omitempty"`
}

// DescribeBook is the built-in exec operation: it reports which book the
// request bound and for whom.
func DescribeBook(_ context.Context, b *book.Book, principal *authenticate.Principal) (interface{}, error) {
	reply := DescribeReply{
		ID:   b.ID(),
		Name: b.Name(),
	}
	if principal != nil {
		reply.User = principal.DisplayName()
	}
	return reply, nil
}
