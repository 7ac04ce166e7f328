package auth

import (
	"context"
	"fmt"
	"net/http"

	"carrel/internal/client"
	"carrel/internal/config"
	"carrel/internal/oauth"
	"carrel/internal/tokenstore"
)

// Coordinator assembles the authentication subsystem for one configured
// server: the storage-backed token manager, the method-specific session
// handler, and the middleware guarding API calls.
type Coordinator struct {
	cfg        *config.Server
	tokens     *tokenstore.Manager
	middleware *Middleware
	httpClient *http.Client
}

// NewCoordinator builds the coordinator from configuration, selecting the
// session handler by auth method. For OAuth2 this constructs the token
// manager, which probes the OS keyring.
func NewCoordinator(cfg *config.Server) (*Coordinator, error) {
	var tokens *tokenstore.Manager
	if cfg.AuthMethod == config.AuthMethodOAuth2 {
		var err error
		tokens, err = tokenstore.NewManager(cfg.TokenStorageBackend)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token storage: %w", err)
		}
	}
	return NewCoordinatorWithTokens(cfg, tokens, nil)
}

// NewCoordinatorWithTokens builds a coordinator over an explicit token
// manager and HTTP client. Used by tests and by embedders that manage
// storage themselves.
func NewCoordinatorWithTokens(cfg *config.Server, tokens *tokenstore.Manager, httpClient *http.Client) (*Coordinator, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: client.DefaultHTTPTimeout}
	}

	var handler Handler
	switch cfg.AuthMethod {
	case config.AuthMethodOAuth2:
		flow, err := oauth.NewFlow(cfg, tokens, httpClient)
		if err != nil {
			return nil, err
		}
		handler = &oauthSession{flow: flow, openBrowser: cfg.EnableBrowserAuth}

	case config.AuthMethodBasic:
		basic, err := NewBasicHandler(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		handler = basic

	default:
		return nil, &config.ConfigurationError{Reason: fmt.Sprintf("unsupported auth method: %q", cfg.AuthMethod)}
	}

	return &Coordinator{
		cfg:        cfg,
		tokens:     tokens,
		middleware: NewMiddleware(handler),
		httpClient: httpClient,
	}, nil
}

// oauthSession adapts the OAuth2 flow to the Handler and Refresher
// contracts.
type oauthSession struct {
	flow        *oauth.Flow
	openBrowser bool
}

func (s *oauthSession) Authenticate(ctx context.Context) error {
	return s.flow.Authenticate(ctx, s.openBrowser)
}

func (s *oauthSession) Logout(ctx context.Context) error {
	return s.flow.Logout(ctx)
}

func (s *oauthSession) Refresh(ctx context.Context) bool {
	return s.flow.Refresh(ctx)
}

// GetClient ensures an authenticated session and returns a client wired
// with the method's credential source. Returns nil with the error when no
// session could be established.
func (c *Coordinator) GetClient(ctx context.Context) (*client.Client, error) {
	if err := c.middleware.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	return client.New(c.cfg.URL, c.httpClient, c.credentials()), nil
}

func (c *Coordinator) credentials() client.CredentialSource {
	if c.cfg.AuthMethod == config.AuthMethodBasic {
		return client.BasicCredentials{Username: c.cfg.Username, Password: c.cfg.Password}
	}
	return client.TokenCredentials{Tokens: c.tokens, Server: c.cfg.URL}
}

// Refresh attempts a non-interactive credential renewal. Returns false
// when the method does not support refresh or the attempt failed.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	if refresher, ok := c.middleware.handler.(Refresher); ok {
		return refresher.Refresh(ctx)
	}
	return false
}

// Middleware returns the call-guarding middleware.
func (c *Coordinator) Middleware() *Middleware {
	return c.middleware
}

// TokenManager returns the token manager, nil for basic auth.
func (c *Coordinator) TokenManager() *tokenstore.Manager {
	return c.tokens
}

// Config returns the server configuration the coordinator was built from.
func (c *Coordinator) Config() *config.Server {
	return c.cfg
}
