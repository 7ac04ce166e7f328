// Package config loads and validates the server configuration consumed by
// the authentication subsystem: the server URL plus either OAuth2
// parameters or a basic-auth credential pair, and the optional forced
// token-storage backend.
//
// Configuration is read from a YAML file in the per-OS user configuration
// directory, then overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AuthMethod selects the authentication handler.
type AuthMethod string

const (
	// AuthMethodOAuth2 selects the browser-based Authorization Code with
	// PKCE flow.
	AuthMethodOAuth2 AuthMethod = "oauth2"

	// AuthMethodBasic selects the username/password session.
	AuthMethodBasic AuthMethod = "basic"
)

// DefaultScope is requested when the configuration does not name one.
const DefaultScope = "openid profile email"

// ConfigurationError reports a missing or inconsistent required setting.
// It is raised at construction time, never at call time.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// OAuth2Params holds the provider settings for the authorization code flow.
type OAuth2Params struct {
	ClientID     string `yaml:"client_id" env:"CARREL_OAUTH_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CARREL_OAUTH_CLIENT_SECRET"`

	// RedirectPort pins the local callback listener to a port. Zero lets
	// the flow scan for a free one.
	RedirectPort int `yaml:"redirect_port" env:"CARREL_OAUTH_REDIRECT_PORT"`

	AuthorizationEndpoint string `yaml:"authorization_endpoint" env:"CARREL_OAUTH_AUTH_ENDPOINT"`
	TokenEndpoint         string `yaml:"token_endpoint" env:"CARREL_OAUTH_TOKEN_ENDPOINT"`

	// DiscoveryURL points at the provider's OIDC discovery document. Used
	// to resolve the endpoints when they are not set explicitly.
	DiscoveryURL string `yaml:"discovery_url" env:"CARREL_OAUTH_DISCOVERY_URL"`

	Scope string `yaml:"scope" env:"CARREL_OAUTH_SCOPE"`
}

// Configured reports whether any OAuth2 setting is present.
func (p *OAuth2Params) Configured() bool {
	return p.ClientID != ""
}

// Server is the configuration for one protected content server.
type Server struct {
	URL        string     `yaml:"url" env:"CARREL_URL"`
	AuthMethod AuthMethod `yaml:"auth_method" env:"CARREL_AUTH_METHOD"`

	Username string `yaml:"username" env:"CARREL_USERNAME"`
	Password string `yaml:"password" env:"CARREL_PASSWORD"`

	OAuth2 OAuth2Params `yaml:"oauth2"`

	// TokenStorageBackend forces a storage backend ("keyring" or
	// "encrypted_file"). Empty selects automatically.
	TokenStorageBackend string `yaml:"token_storage_backend" env:"CARREL_TOKEN_STORAGE"`

	// EnableBrowserAuth controls whether the OAuth2 flow opens the system
	// browser or only prints the authorization URL.
	EnableBrowserAuth bool `yaml:"enable_browser_auth" env:"CARREL_ENABLE_BROWSER_AUTH"`
}

// DefaultConfigPath returns the per-OS location of the YAML config file.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, "carrel", "config.yaml"), nil
}

// Load reads the configuration from path (the default location when path
// is empty), applies environment overrides, and validates the result.
// A missing file is not an error; the environment alone may configure a
// server.
func Load(path string) (*Server, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := &Server{
		AuthMethod:        AuthMethodBasic,
		EnableBrowserAuth: true,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to environment-only configuration.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.AuthMethod = AuthMethod(strings.ToLower(string(cfg.AuthMethod)))
	if cfg.OAuth2.Scope == "" {
		cfg.OAuth2.Scope = DefaultScope
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required settings for the selected auth method.
func (s *Server) Validate() error {
	if s.URL == "" {
		return &ConfigurationError{Reason: "server URL is required"}
	}

	switch s.AuthMethod {
	case AuthMethodOAuth2:
		if !s.OAuth2.Configured() {
			return &ConfigurationError{Reason: "oauth2 client_id is required"}
		}
		if s.OAuth2.AuthorizationEndpoint == "" && s.OAuth2.DiscoveryURL == "" {
			return &ConfigurationError{Reason: "oauth2 requires an authorization endpoint or a discovery URL"}
		}
		if s.OAuth2.TokenEndpoint == "" && s.OAuth2.DiscoveryURL == "" {
			return &ConfigurationError{Reason: "oauth2 requires a token endpoint or a discovery URL"}
		}
	case AuthMethodBasic:
		if s.Username == "" || s.Password == "" {
			return &ConfigurationError{Reason: "basic auth requires username and password"}
		}
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unsupported auth method: %q", s.AuthMethod)}
	}

	return nil
}
