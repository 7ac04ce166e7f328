// Package auth ties the authentication pieces together: the per-method
// session handlers, the retry-bounded middleware that guards API calls,
// and the coordinator that assembles everything from configuration.
package auth

import (
	"context"
	"fmt"
)

// Handler establishes and tears down an authenticated session for one
// server. Implementations are the OAuth2 flow and the basic-auth session.
type Handler interface {
	// Authenticate ensures a usable session, interacting with the user if
	// necessary. Idempotent when credentials are already valid.
	Authenticate(ctx context.Context) error

	// Logout discards any persisted credentials.
	Logout(ctx context.Context) error
}

// Refresher is implemented by handlers that can renew credentials without
// user interaction. Refresh reports success; on failure the middleware
// falls back to a full Authenticate.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// AuthRequiredError reports that an operation failed with rejected
// credentials and the bounded recovery attempt did not help. The caller
// must re-authenticate explicitly.
type AuthRequiredError struct {
	Err error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required: %v", e.Err)
}

func (e *AuthRequiredError) Unwrap() error {
	return e.Err
}
