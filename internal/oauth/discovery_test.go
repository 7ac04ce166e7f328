package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"issuer": "https://idp.example.com",
			"authorization_endpoint": "https://idp.example.com/authorize",
			"token_endpoint": "https://idp.example.com/token"
		}`))
	}))
	defer srv.Close()

	meta, err := DiscoverMetadata(context.Background(), srv.Client(), srv.URL+"/.well-known/openid-configuration")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/authorize", meta.AuthorizationEndpoint)
	assert.Equal(t, "https://idp.example.com/token", meta.TokenEndpoint)
}

func TestDiscoverMetadataMissingEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issuer": "https://idp.example.com"}`))
	}))
	defer srv.Close()

	_, err := DiscoverMetadata(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required endpoints")
}

func TestDiscoverMetadataServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := DiscoverMetadata(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
