package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/bookgate/bookgate/pkg/fnv"
)

// Mock serves the validation endpoint from a fixed token table. It backs
// development setups and the e2e tests.
type Mock struct {
	mu     sync.Mutex
	Tokens map[string]validationResponse
	logger log.Logger
}

// MockEntry is the identity a mock hands out for one token.
type MockEntry struct {
	Subject string
	Name    string
	Roles   []string
}

// NewMock returns a validation endpoint accepting exactly the given
// tokens. Entries with an empty subject get a fingerprint of their token.
func NewMock(logger log.Logger, tokens map[string]MockEntry) *Mock {
	m := &Mock{
		Tokens: make(map[string]validationResponse, len(tokens)),
		logger: log.With(logger, "component", "authenticate/remote"),
	}
	for token, entry := range tokens {
		subject := entry.Subject
		if subject == "" {
			subject = fnv.Fingerprint(token)
		}
		m.Tokens[token] = validationResponse{
			Subject: subject,
			Name:    entry.Name,
			Roles:   entry.Roles,
		}
	}
	return m
}

func (s *Mock) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	if req.Method != http.MethodPost {
		write(w, http.StatusMethodNotAllowed, &validationError{Name: "MethodNotAllowed", Reason: "Only requests of type 'POST' are accepted."}, s.logger)
		return
	}
	if req.Header.Get("Content-Type") != "application/json" {
		write(w, http.StatusBadRequest, &validationError{Name: "InvalidContentType", Reason: "Only requests with Content-Type application/json are accepted."}, s.logger)
		return
	}
	request := &validationRequest{}
	if err := json.NewDecoder(req.Body).Decode(request); err != nil {
		write(w, http.StatusBadRequest, &validationError{Name: "InvalidBody", Reason: fmt.Sprintf("Unable to parse body as JSON: %v", err)}, s.logger)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if request.Token == "" {
		write(w, http.StatusBadRequest, &validationError{Name: "BadRequest", Reason: "No token provided."}, s.logger)
		return
	}

	response, found := s.Tokens[request.Token]
	if !found {
		write(w, http.StatusUnauthorized, &validationError{Name: "NotAuthorized", Reason: "The provided token is not recognized."}, s.logger)
		return
	}

	write(w, http.StatusOK, response, s.logger)
}

func write(w http.ResponseWriter, statusCode int, resp interface{}, logger log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		level.Error(logger).Log("msg", "marshaling response failed", "err", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		level.Error(logger).Log("msg", "writing response failed", "err", err)
	}
}
