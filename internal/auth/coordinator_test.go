package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrel/internal/config"
	"carrel/internal/tokenstore"
)

func basicAuthServer(t *testing.T, user, pass string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/me" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"user-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoordinatorBasicAuth(t *testing.T) {
	srv := basicAuthServer(t, "alice", "secret")

	cfg := &config.Server{
		URL:        srv.URL,
		AuthMethod: config.AuthMethodBasic,
		Username:   "alice",
		Password:   "secret",
	}
	coord, err := NewCoordinator(cfg)
	require.NoError(t, err)
	assert.Nil(t, coord.TokenManager(), "basic auth needs no token storage")

	c, err := coord.GetClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c)

	ident, err := c.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", ident.ID)
}

func TestCoordinatorBasicAuthRejected(t *testing.T) {
	srv := basicAuthServer(t, "alice", "secret")

	cfg := &config.Server{
		URL:        srv.URL,
		AuthMethod: config.AuthMethodBasic,
		Username:   "alice",
		Password:   "wrong",
	}
	coord, err := NewCoordinator(cfg)
	require.NoError(t, err)

	c, err := coord.GetClient(context.Background())
	require.Error(t, err)
	assert.Nil(t, c)
}

func TestCoordinatorOAuth2Wiring(t *testing.T) {
	backend, err := tokenstore.NewEncryptedFileBackend(t.TempDir())
	require.NoError(t, err)
	tokens := tokenstore.NewManagerWithBackend(backend, tokenstore.BackendEncryptedFile)

	cfg := &config.Server{
		URL:        "https://content.example.com",
		AuthMethod: config.AuthMethodOAuth2,
		OAuth2: config.OAuth2Params{
			ClientID:              "client-1",
			AuthorizationEndpoint: "https://idp.example.com/authorize",
			TokenEndpoint:         "https://idp.example.com/token",
		},
	}
	coord, err := NewCoordinatorWithTokens(cfg, tokens, nil)
	require.NoError(t, err)
	assert.Same(t, tokens, coord.TokenManager())

	// The OAuth2 session must support non-interactive refresh.
	_, ok := coord.Middleware().handler.(Refresher)
	assert.True(t, ok)
}

func TestCoordinatorConfigurationErrors(t *testing.T) {
	var cfgErr *config.ConfigurationError

	_, err := NewCoordinatorWithTokens(&config.Server{
		URL:        "https://x",
		AuthMethod: config.AuthMethodBasic,
		Username:   "alice",
	}, nil, nil)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewCoordinatorWithTokens(&config.Server{
		URL:        "https://x",
		AuthMethod: config.AuthMethodOAuth2,
	}, nil, nil)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewCoordinatorWithTokens(&config.Server{
		URL:        "https://x",
		AuthMethod: "digest",
	}, nil, nil)
	assert.ErrorAs(t, err, &cfgErr)
}
