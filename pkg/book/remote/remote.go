// Package remote drives book sessions on an engine service over HTTP. Open
// posts the canonical document to the service's session endpoint; Close
// deletes the session it was given. Payloads are snappy-compressed on the
// wire, workbook documents carry a lot of cell data.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kit/log"
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/payload"
	"github.com/bookgate/bookgate/pkg/runutil"
)

// responseBodyLimit bounds how much of an engine reply is read into memory.
const responseBodyLimit = 32 * 1024

type Engine struct {
	logger   log.Logger
	client   *http.Client
	sessions string
}

// New returns an engine talking to the service at base, for example
// https://engine.internal:9102. The client carries the caller's transport
// stack (instrumentation, tracing, TLS).
func New(logger log.Logger, client *http.Client, base *url.URL) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{
		logger:   log.With(logger, "component", "book/remote"),
		client:   client,
		sessions: strings.TrimSuffix(base.String(), "/") + "/v1/sessions",
	}
}

type sessionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

func (e *statusError) HTTPStatusCode() int { return e.status }

// Open posts the document to the engine service and wraps the returned
// session in a Book whose close deletes it again.
func (e *Engine) Open(ctx context.Context, doc payload.Document) (*book.Book, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling book document")
	}
	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.sessions, bytes.NewBuffer(compressed))
	if err != nil {
		return nil, errors.Wrap(err, "creating session open request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Accept", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "opening book session")
	}
	defer runutil.ExhaustCloseWithLogOnErr(e.logger, res.Body, "close session open response")

	body, err := ioutil.ReadAll(io.LimitReader(res.Body, responseBodyLimit))
	if err != nil {
		return nil, errors.Wrap(err, "reading session open response")
	}

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusTooManyRequests:
		return nil, &statusError{status: http.StatusTooManyRequests, msg: "engine rate limited, please try again later"}
	default:
		return nil, fmt.Errorf("engine rejected session open with code %d and body %q", res.StatusCode, string(body))
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, errors.Wrap(err, "parsing session open response")
	}
	if session.ID == "" {
		return nil, fmt.Errorf("engine responded without a session id")
	}

	return book.New(session.ID, session.Name, doc, func(ctx context.Context) error {
		return e.close(ctx, session.ID)
	}), nil
}

func (e *Engine) close(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.sessions+"/"+url.PathEscape(id), nil)
	if err != nil {
		return errors.Wrap(err, "creating session close request")
	}

	res, err := e.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "closing book session")
	}
	defer runutil.ExhaustCloseWithLogOnErr(e.logger, res.Body, "close session close response")

	switch res.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("book session %s already released", id)
	default:
		body, _ := ioutil.ReadAll(io.LimitReader(res.Body, responseBodyLimit))
		return fmt.Errorf("engine rejected session close with code %d and body %q", res.StatusCode, string(body))
	}
}
