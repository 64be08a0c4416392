package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-kit/log"
	"github.com/golang/snappy"

	"github.com/bookgate/bookgate/pkg/payload"
)

func testEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *httptest.Server) {
	t.Helper()
	s := httptest.NewServer(handler)
	t.Cleanup(s.Close)
	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return New(log.NewNopLogger(), s.Client(), u), s
}

func TestOpenAndClose(t *testing.T) {
	doc := payload.Document{"book": map[string]interface{}{"name": "sales.xlsx"}}

	var opened, closed bool
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.Method == http.MethodPost && req.URL.Path == "/v1/sessions":
			if h := req.Header.Get("Content-Encoding"); h != "snappy" {
				t.Errorf("got Content-Encoding %q, want snappy", h)
			}
			body, err := ioutil.ReadAll(req.Body)
			if err != nil {
				t.Fatalf("read request body: %v", err)
			}
			data, err := snappy.Decode(nil, body)
			if err != nil {
				t.Fatalf("decode request body: %v", err)
			}
			var got payload.Document
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal request body: %v", err)
			}
			if _, ok := got["book"]; !ok {
				t.Errorf("request document lost the book field: %#v", got)
			}
			opened = true
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"abc123","name":"sales.xlsx"}`)
		case req.Method == http.MethodDelete && req.URL.Path == "/v1/sessions/abc123":
			closed = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	b, err := engine.Open(context.Background(), doc)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !opened {
		t.Fatal("engine service saw no open request")
	}
	if b.ID() != "abc123" {
		t.Errorf("got session id %q, want abc123", b.ID())
	}
	if b.Name() != "sales.xlsx" {
		t.Errorf("got book name %q, want sales.xlsx", b.Name())
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatal("engine service saw no close request")
	}
}

func TestOpenRateLimited(t *testing.T) {
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := engine.Open(context.Background(), payload.Document{})
	if err == nil {
		t.Fatal("expected an error")
	}
	coded, ok := err.(interface{ HTTPStatusCode() int })
	if !ok {
		t.Fatalf("error %v does not carry a status code", err)
	}
	if coded.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Errorf("got status %d, want %d", coded.HTTPStatusCode(), http.StatusTooManyRequests)
	}
}

func TestOpenRejected(t *testing.T) {
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "engine on fire", http.StatusInternalServerError)
	})

	_, err := engine.Open(context.Background(), payload.Document{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestOpenWithoutSessionID(t *testing.T) {
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"name":"sales.xlsx"}`)
	})

	_, err := engine.Open(context.Background(), payload.Document{})
	if err == nil {
		t.Fatal("expected an error for a reply without a session id")
	}
}

func TestCloseGone(t *testing.T) {
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			fmt.Fprint(w, `{"id":"gone","name":""}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	b, err := engine.Open(context.Background(), payload.Document{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b.Close(context.Background()); err == nil {
		t.Fatal("expected an error closing a released session")
	}
}

func TestOpenCancelledContext(t *testing.T) {
	engine, _ := testEngine(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"id":"abc","name":""}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Open(ctx, payload.Document{}); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
