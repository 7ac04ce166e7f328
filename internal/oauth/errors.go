package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthTimeout is returned when no callback arrives before the hard
	// timeout elapses. The caller may retry.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrPortExhausted is returned when no port in the scan range could be
	// bound for the callback listener.
	ErrPortExhausted = errors.New("no free port available for the callback listener")

	// ErrStateMismatch is returned when the state echoed by the provider
	// does not match the one generated for the attempt. The flow aborts
	// before any token exchange and is never retried automatically.
	ErrStateMismatch = errors.New("callback state mismatch - possible CSRF attack")
)

// DeniedError reports that the provider returned an error on the redirect,
// typically because the user declined consent.
type DeniedError struct {
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// ExchangeError reports a failed code-for-token exchange at the token
// endpoint.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
