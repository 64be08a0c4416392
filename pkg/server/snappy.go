package server

import (
	"bytes"
	"io/ioutil"
	"net/http"

	"github.com/golang/snappy"
)

// Snappy transparently decompresses request bodies sent with
// Content-Encoding: snappy before they reach the book payload parser.
func Snappy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader := r.Body

		if r.Header.Get("Content-Encoding") == "snappy" {
			body, err := ioutil.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			defer r.Body.Close()

			// A body that does not decode must surface as a malformed
			// payload, not be mistaken for an empty one.
			payload, err := snappy.Decode(nil, body)
			if err != nil {
				http.Error(w, "malformed snappy content encoding", http.StatusBadRequest)
				return
			}
			reader = ioutil.NopCloser(bytes.NewBuffer(payload))
		}

		r.Body = reader

		next.ServeHTTP(w, r)
	}
}
