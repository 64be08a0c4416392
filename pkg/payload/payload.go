// Package payload normalizes the two inbound encodings of a book payload
// into one canonical document. Browser-driven callers submit the payload as
// a form field, scripted callers post it as the raw request body; exactly
// one of the two is consulted per request.
package payload

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// FormField is the form parameter carrying the book payload when the caller
// submits form-encoded content instead of a raw JSON body.
const FormField = "bookData"

// multipartMemory bounds the in-memory part of multipart form parsing.
const multipartMemory = 4 * 1024 * 1024

// ErrNoContent is returned when neither the form field nor the request body
// carries a payload.
var ErrNoContent = errors.New("no book data provided")

// Document is the canonical JSON document describing the caller's intended
// book operation. It is produced once per request by ParseRequest and must
// be treated as read-only afterwards.
type Document map[string]interface{}

// MalformedError reports a payload that was present but not valid JSON.
// Source names the consulted input so the caller's error detail points at
// the right encoding.
type MalformedError struct {
	Source string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed book payload in %s: %v", e.Source, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ParseRequest extracts the canonical document from the request. The form
// field wins when present and non-empty; otherwise the raw body is read,
// at most once. Form parsing consumes form-encoded bodies, so a request
// contributes its payload through exactly one source.
func ParseRequest(req *http.Request) (Document, error) {
	raw, err := formValue(req)
	if err != nil {
		return nil, &MalformedError{Source: "form", Err: err}
	}
	if raw != "" {
		return parse([]byte(raw), "form")
	}

	body, err := ioutil.ReadAll(req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading book payload body")
	}
	if len(body) == 0 {
		return nil, ErrNoContent
	}
	return parse(body, "body")
}

func formValue(req *http.Request) (string, error) {
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		if err := req.ParseMultipartForm(multipartMemory); err != nil {
			return "", err
		}
	} else if err := req.ParseForm(); err != nil {
		return "", err
	}
	return req.PostForm.Get(FormField), nil
}

func parse(data []byte, source string) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedError{Source: source, Err: err}
	}
	return doc, nil
}
