package auth

import (
	"context"
	"log/slog"
	"net/http"

	"carrel/internal/client"
	"carrel/internal/config"
)

// BasicHandler is the username/password session. Credentials live in the
// configuration and are validated against the identity endpoint; nothing
// is persisted in the token store.
type BasicHandler struct {
	cfg        *config.Server
	httpClient *http.Client
}

// NewBasicHandler builds a handler for the configured server. Returns a
// ConfigurationError when the credential pair is incomplete.
func NewBasicHandler(cfg *config.Server, httpClient *http.Client) (*BasicHandler, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, &config.ConfigurationError{Reason: "basic auth requires username and password"}
	}
	return &BasicHandler{cfg: cfg, httpClient: httpClient}, nil
}

// Authenticate validates the credential pair against the server.
func (h *BasicHandler) Authenticate(ctx context.Context) error {
	c := client.New(h.cfg.URL, h.httpClient, client.BasicCredentials{
		Username: h.cfg.Username,
		Password: h.cfg.Password,
	})

	ident, err := c.WhoAmI(ctx)
	if err != nil {
		slog.Warn("SECURITY_AUDIT: basic auth validation failed",
			"event", "basic_auth_failed",
			"server", h.cfg.URL,
			"username", h.cfg.Username,
		)
		return err
	}

	slog.Info("SECURITY_AUDIT: basic auth validated",
		"event", "basic_auth_ok",
		"server", h.cfg.URL,
		"id", ident.ID,
	)
	return nil
}

// Logout is a no-op; basic credentials are never persisted.
func (h *BasicHandler) Logout(ctx context.Context) error {
	return nil
}
