// Package client provides the thin authenticated handle for a remote
// content server. The wider document and search API lives elsewhere; this
// package only knows how to attach credentials to requests, detect
// Unauthorized responses, and perform the lightweight identity check used
// to validate issued credentials.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carrel/internal/tokenstore"
)

// IdentityPath is the "who am I" endpoint on the protected server.
const IdentityPath = "/api/v1/me"

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// ErrNoToken is returned when a request needs a stored token and none is
// available (absent or expired).
var ErrNoToken = errors.New("no valid token available")

// CredentialSource attaches authentication material to an outgoing request.
type CredentialSource interface {
	Apply(req *http.Request) error
}

// StaticCredentials returns a CredentialSource that sets a fixed
// Authorization header value, e.g. "Bearer <token>".
func StaticCredentials(authorization string) CredentialSource {
	return staticCredentials(authorization)
}

type staticCredentials string

func (s staticCredentials) Apply(req *http.Request) error {
	req.Header.Set("Authorization", string(s))
	return nil
}

// BasicCredentials applies a username/password pair.
type BasicCredentials struct {
	Username string
	Password string
}

func (b BasicCredentials) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// TokenCredentials reads the current token record from the manager on
// every request, so a refreshed record takes effect without rebuilding the
// client.
type TokenCredentials struct {
	Tokens *tokenstore.Manager
	Server string
}

func (t TokenCredentials) Apply(req *http.Request) error {
	rec := t.Tokens.Get(t.Server)
	if rec == nil {
		return ErrNoToken
	}
	req.Header.Set("Authorization", rec.AuthorizationValue())
	return nil
}

// UnauthorizedError reports a 401 response from the protected server.
type UnauthorizedError struct {
	Status int
	Body   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: server returned status %d", e.Status)
}

// IsUnauthorized reports whether err indicates rejected credentials.
// Besides the typed error, it recognizes common 401 patterns in wrapped
// errors from other transports.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}

	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return true
	}
	if errors.Is(err, ErrNoToken) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"401", "unauthorized", "invalid_token", "token expired"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Identity is the response of the identity endpoint.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Client is an authenticated handle for one content server.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
}

// New builds a client for the server at baseURL. A nil httpClient selects
// a default with a 30-second timeout.
func New(baseURL string, httpClient *http.Client, creds CredentialSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		creds:   creds,
	}
}

// BaseURL returns the server identity this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs an authenticated request against the server. A 401 response
// is consumed and returned as *UnauthorizedError; for any other status the
// response is handed back to the caller, body open.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		if err := c.creds.Apply(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &UnauthorizedError{Status: resp.StatusCode, Body: string(b)}
	}

	return resp, nil
}

// WhoAmI calls the identity endpoint, validating that the attached
// credentials actually work.
func (c *Client) WhoAmI(ctx context.Context) (*Identity, error) {
	resp, err := c.Do(ctx, http.MethodGet, IdentityPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity check failed with status %d", resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	return &ident, nil
}
