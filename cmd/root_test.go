package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"carrel/internal/auth"
	"carrel/internal/oauth"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic error", errors.New("boom"), ExitCodeError},
		{"auth required", &auth.AuthRequiredError{Err: errors.New("401")}, ExitCodeAuthRequired},
		{"wrapped auth required", fmt.Errorf("call failed: %w", &auth.AuthRequiredError{Err: errors.New("401")}), ExitCodeAuthRequired},
		{"denied by provider", &oauth.DeniedError{Code: "access_denied"}, ExitCodeAuthFailed},
		{"exchange failed", &oauth.ExchangeError{Err: errors.New("invalid_grant")}, ExitCodeAuthFailed},
		{"callback timeout", oauth.ErrAuthTimeout, ExitCodeAuthFailed},
		{"state mismatch", fmt.Errorf("login: %w", oauth.ErrStateMismatch), ExitCodeAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestFormatExpiry(t *testing.T) {
	future := formatExpiry(time.Now().Add(90 * time.Minute))
	assert.Contains(t, future, "(in 1h30m")

	past := formatExpiry(time.Now().Add(-30 * time.Minute))
	assert.Contains(t, past, "ago)")
}
