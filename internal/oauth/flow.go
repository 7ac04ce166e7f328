package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"carrel/internal/client"
	"carrel/internal/config"
	"carrel/internal/tokenstore"
)

// CallbackTimeout is the hard upper bound on waiting for the provider's
// redirect. Past it the attempt fails with ErrAuthTimeout.
const CallbackTimeout = 300 * time.Second

// resultPollInterval is how often the flow checks the callback server for
// a terminal result.
const resultPollInterval = 500 * time.Millisecond

// Flow runs the browser-based Authorization Code with PKCE flow for one
// configured server and persists the resulting tokens.
//
// A Flow is not safe for concurrent Authenticate calls; the coordinator
// serializes attempts.
type Flow struct {
	cfg        *config.Server
	tokens     *tokenstore.Manager
	httpClient *http.Client

	// openURL is swapped in tests to capture the authorization URL instead
	// of launching a browser.
	openURL func(url string) error

	callbackTimeout time.Duration
	pollInterval    time.Duration
}

// NewFlow builds a Flow for the configured server. Returns a
// ConfigurationError when the OAuth2 parameters are incomplete.
func NewFlow(cfg *config.Server, tokens *tokenstore.Manager, httpClient *http.Client) (*Flow, error) {
	if !cfg.OAuth2.Configured() {
		return nil, &config.ConfigurationError{Reason: "oauth2 client_id is required"}
	}
	if cfg.OAuth2.AuthorizationEndpoint == "" && cfg.OAuth2.DiscoveryURL == "" {
		return nil, &config.ConfigurationError{Reason: "oauth2 requires an authorization endpoint or a discovery URL"}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: client.DefaultHTTPTimeout}
	}
	return &Flow{
		cfg:             cfg,
		tokens:          tokens,
		httpClient:      httpClient,
		openURL:         openBrowser,
		callbackTimeout: CallbackTimeout,
		pollInterval:    resultPollInterval,
	}, nil
}

// endpoints resolves the authorization and token endpoints, consulting the
// discovery document when they are not configured explicitly.
func (f *Flow) endpoints(ctx context.Context) (authorize, token string, err error) {
	authorize = f.cfg.OAuth2.AuthorizationEndpoint
	token = f.cfg.OAuth2.TokenEndpoint
	if authorize != "" && token != "" {
		return authorize, token, nil
	}

	meta, err := DiscoverMetadata(ctx, f.httpClient, f.cfg.OAuth2.DiscoveryURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve provider endpoints: %w", err)
	}
	if authorize == "" {
		authorize = meta.AuthorizationEndpoint
	}
	if token == "" {
		token = meta.TokenEndpoint
	}
	return authorize, token, nil
}

// Authenticate runs one authentication attempt. A valid cached token
// short-circuits without any network traffic. openBrowser controls whether
// the system browser is launched; the authorization URL is printed either
// way.
func (f *Flow) Authenticate(ctx context.Context, openBrowser bool) error {
	if rec := f.tokens.Get(f.cfg.URL); rec != nil {
		slog.Debug("Using cached token", "server", f.cfg.URL)
		return nil
	}

	attemptID := uuid.New().String()
	slog.Info("Starting OAuth authentication",
		"attempt_id", attemptID,
		"server", f.cfg.URL,
	)

	authorizeEndpoint, tokenEndpoint, err := f.endpoints(ctx)
	if err != nil {
		return err
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return err
	}
	state, err := GenerateState()
	if err != nil {
		return err
	}

	server := NewCallbackServer()
	if f.cfg.OAuth2.RedirectPort > 0 {
		err = server.Start(f.cfg.OAuth2.RedirectPort)
	} else {
		err = server.StartInRange(DefaultPortRangeStart, PortScanRange)
	}
	if err != nil {
		return err
	}
	defer server.Stop()

	authURL := buildAuthorizationURL(authorizeEndpoint, f.cfg.OAuth2.ClientID, server.RedirectURI(), f.cfg.OAuth2.Scope, state, pkce)

	fmt.Printf("\nTo authenticate, open the following URL in your browser:\n\n  %s\n\n", authURL)
	if openBrowser {
		if err := f.openURL(authURL); err != nil {
			slog.Warn("Failed to open browser, continue manually",
				"attempt_id", attemptID,
				"error", err.Error(),
			)
		}
	}

	result, err := f.awaitCallback(ctx, server)
	if err != nil {
		slog.Warn("SECURITY_AUDIT: authentication attempt failed",
			"event", "oauth_callback_failed",
			"attempt_id", attemptID,
			"error", err.Error(),
		)
		return err
	}

	if result.IsError() {
		slog.Warn("SECURITY_AUDIT: authorization denied by provider",
			"event", "oauth_denied",
			"attempt_id", attemptID,
			"code", result.Error,
		)
		return &DeniedError{Code: result.Error, Description: result.ErrorDescription}
	}

	// State is checked before the code touches the token endpoint.
	if result.State != state {
		slog.Warn("SECURITY_AUDIT: state mismatch on callback",
			"event", "oauth_state_mismatch",
			"attempt_id", attemptID,
		)
		return ErrStateMismatch
	}

	conf := f.oauth2Config(authorizeEndpoint, tokenEndpoint, server.RedirectURI())
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	tok, err := conf.Exchange(ctx, result.Code, oauth2.VerifierOption(pkce.CodeVerifier))
	if err != nil {
		slog.Warn("SECURITY_AUDIT: token exchange failed",
			"event", "oauth_exchange_failed",
			"attempt_id", attemptID,
			"error", err.Error(),
		)
		return &ExchangeError{Err: err}
	}

	rec := recordFromToken(tok, "")
	if err := f.tokens.Store(f.cfg.URL, rec); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}

	if err := f.validateIdentity(ctx, rec); err != nil {
		slog.Warn("Token validation against server failed",
			"attempt_id", attemptID,
			"error", err.Error(),
		)
		return fmt.Errorf("token validation failed: %w", err)
	}

	slog.Info("SECURITY_AUDIT: authentication succeeded",
		"event", "oauth_authenticated",
		"attempt_id", attemptID,
		"server", f.cfg.URL,
	)
	return nil
}

// awaitCallback polls the callback server until a terminal result arrives,
// the timeout elapses, or the context is cancelled.
func (f *Flow) awaitCallback(ctx context.Context, server *CallbackServer) (*CallbackResult, error) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(f.callbackTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrAuthTimeout
		case <-ticker.C:
			if result, ok := server.Result(); ok {
				return result, nil
			}
		}
	}
}

// Refresh attempts a refresh-token grant for the server's stored record.
// Returns true on success. On failure the stored record is left untouched
// and the caller falls back to a full re-authentication.
func (f *Flow) Refresh(ctx context.Context) bool {
	rec := f.tokens.GetIncludingExpired(f.cfg.URL)
	if rec == nil || rec.RefreshToken == "" {
		return false
	}

	authorizeEndpoint, tokenEndpoint, err := f.endpoints(ctx)
	if err != nil {
		slog.Warn("Token refresh failed to resolve endpoints", "error", err.Error())
		return false
	}

	conf := f.oauth2Config(authorizeEndpoint, tokenEndpoint, "")
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		slog.Warn("SECURITY_AUDIT: token refresh failed",
			"event", "oauth_refresh_failed",
			"server", f.cfg.URL,
			"error", err.Error(),
		)
		return false
	}

	// Providers may omit the refresh token on refresh responses; keep the
	// old one in that case.
	fresh := recordFromToken(tok, rec.RefreshToken)
	if err := f.tokens.Store(f.cfg.URL, fresh); err != nil {
		slog.Warn("Failed to persist refreshed tokens", "error", err.Error())
		return false
	}

	slog.Info("SECURITY_AUDIT: token refreshed",
		"event", "oauth_refreshed",
		"server", f.cfg.URL,
	)
	return true
}

// Logout discards the stored tokens for the server.
func (f *Flow) Logout(ctx context.Context) error {
	return f.tokens.Delete(f.cfg.URL)
}

func (f *Flow) oauth2Config(authorizeEndpoint, tokenEndpoint, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.cfg.OAuth2.ClientID,
		ClientSecret: f.cfg.OAuth2.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeEndpoint,
			TokenURL: tokenEndpoint,
		},
	}
}

// validateIdentity performs the lightweight identity check with the newly
// issued token before reporting success.
func (f *Flow) validateIdentity(ctx context.Context, rec *tokenstore.Record) error {
	c := client.New(f.cfg.URL, f.httpClient, client.StaticCredentials(rec.AuthorizationValue()))
	ident, err := c.WhoAmI(ctx)
	if err != nil {
		return err
	}
	slog.Debug("Authenticated identity confirmed", "id", ident.ID)
	return nil
}

func buildAuthorizationURL(endpoint, clientID, redirectURI, scope, state string, pkce *PKCEChallenge) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", scope)
	params.Set("state", state)
	params.Set("code_challenge", pkce.CodeChallenge)
	params.Set("code_challenge_method", pkce.CodeChallengeMethod)
	return endpoint + "?" + params.Encode()
}

func recordFromToken(tok *oauth2.Token, fallbackRefresh string) *tokenstore.Record {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}

	scope, _ := tok.Extra("scope").(string)

	var expiresIn int64
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}

	rec := tokenstore.NewRecord(tok.AccessToken, refresh, tok.TokenType, scope, expiresIn)
	if !tok.Expiry.IsZero() {
		rec.ExpiresAt = tok.Expiry.Unix()
	}
	return rec
}
