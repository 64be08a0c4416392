// Package remote validates credentials against an external validation
// service. The token travels in a JSON body to the service's endpoint; the
// reply names the subject and its roles. Backend authentication for the
// outbound call (oauth2 client credentials, private key JWT) is the
// transport's business and configured in main.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/bookgate/bookgate/pkg/authenticate"
	"github.com/bookgate/bookgate/pkg/runutil"
)

const responseBodyLimit = 32 * 1024

type validationRequest struct {
	Token string `json:"token"`
}

type validationResponse struct {
	Subject string   `json:"subject"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

type validationError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type Validator struct {
	logger   log.Logger
	client   *http.Client
	endpoint *url.URL
}

var _ = authenticate.TokenValidator(&Validator{})

func NewValidator(logger log.Logger, client *http.Client, endpoint *url.URL) *Validator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Validator{
		logger:   log.With(logger, "component", "authenticate/remote"),
		client:   client,
		endpoint: endpoint,
	}
}

func (v *Validator) ValidateToken(ctx context.Context, credential string) (*authenticate.Principal, error) {
	token := authenticate.BearerToken(credential)
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}

	data, err := json.Marshal(validationRequest{Token: token})
	if err != nil {
		return nil, err
	}

	body, err := v.againstEndpoint(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	response := &validationResponse{}
	if err := json.Unmarshal(body, response); err != nil {
		level.Warn(v.logger).Log("msg", "upstream response could not be parsed", "endpoint", v.endpoint)
		return nil, fmt.Errorf("unable to parse response body: %v", err)
	}

	if len(response.Subject) == 0 {
		level.Warn(v.logger).Log("msg", "upstream responded with an empty subject", "endpoint", v.endpoint)
		return nil, fmt.Errorf("server responded with an empty subject")
	}

	return &authenticate.Principal{
		ID:    response.Subject,
		Name:  response.Name,
		Roles: response.Roles,
	}, nil
}

func (v *Validator) againstEndpoint(ctx context.Context, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer runutil.ExhaustCloseWithLogOnErr(v.logger, res.Body, "close token validation response")

	raw, err := ioutil.ReadAll(io.LimitReader(res.Body, responseBodyLimit))
	if err != nil {
		return nil, err
	}

	if mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		return raw, fmt.Errorf("unrecognized token response content-type %q", res.Header.Get("Content-Type"))
	}

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return raw, authenticate.NewErrorWithCode(fmt.Errorf("unauthorized"), http.StatusUnauthorized)
	case http.StatusTooManyRequests:
		return raw, authenticate.NewErrorWithCode(fmt.Errorf("rate limited, please try again later"), http.StatusTooManyRequests)
	case http.StatusOK, http.StatusCreated:
		return raw, nil
	default:
		return raw, fmt.Errorf("upstream rejected request with code %d and body %q", res.StatusCode, string(raw))
	}
}
