package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrel/internal/client"
)

type fakeHandler struct {
	authCalls   int
	authErr     error
	logoutCalls int
}

func (h *fakeHandler) Authenticate(ctx context.Context) error {
	h.authCalls++
	return h.authErr
}

func (h *fakeHandler) Logout(ctx context.Context) error {
	h.logoutCalls++
	return nil
}

type fakeRefreshHandler struct {
	fakeHandler
	refreshCalls int
	refreshOK    bool
}

func (h *fakeRefreshHandler) Refresh(ctx context.Context) bool {
	h.refreshCalls++
	return h.refreshOK
}

func unauthorized() error {
	return &client.UnauthorizedError{Status: 401}
}

func TestEnsureAuthenticatedTrustsRecentSession(t *testing.T) {
	handler := &fakeHandler{}
	m := NewMiddleware(handler)

	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	assert.Equal(t, 1, handler.authCalls, "a recent session is trusted without traffic")
}

func TestEnsureAuthenticatedRechecksAfterInterval(t *testing.T) {
	handler := &fakeHandler{}
	m := NewMiddleware(handler)

	current := time.Now()
	m.now = func() time.Time { return current }

	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	current = current.Add(RecheckInterval + time.Second)
	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	assert.Equal(t, 2, handler.authCalls)
}

func TestInvokePassesThroughSuccess(t *testing.T) {
	handler := &fakeHandler{}
	m := NewMiddleware(handler)

	calls := 0
	value, err := Invoke(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls)
}

func TestInvokePassesThroughNonAuthError(t *testing.T) {
	handler := &fakeRefreshHandler{refreshOK: true}
	m := NewMiddleware(handler)

	boom := errors.New("network down")
	calls := 0
	_, err := Invoke(context.Background(), m, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "non-auth failures are not retried")
	assert.Equal(t, 0, handler.refreshCalls)
}

func TestInvokeRetriesOnceAfterRefresh(t *testing.T) {
	handler := &fakeRefreshHandler{refreshOK: true}
	m := NewMiddleware(handler)

	calls := 0
	value, err := Invoke(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", unauthorized()
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, handler.refreshCalls)
	assert.Equal(t, 1, handler.authCalls, "refresh success skips re-authentication")
}

func TestInvokeFallsBackToReauth(t *testing.T) {
	handler := &fakeRefreshHandler{refreshOK: false}
	m := NewMiddleware(handler)

	calls := 0
	value, err := Invoke(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", unauthorized()
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, 1, handler.refreshCalls)
	assert.Equal(t, 2, handler.authCalls, "initial ensure plus one recovery")
}

func TestInvokeRetryIsBounded(t *testing.T) {
	handler := &fakeRefreshHandler{refreshOK: true}
	m := NewMiddleware(handler)

	calls := 0
	_, err := Invoke(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		return "", unauthorized()
	})

	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, calls, "the call runs at most twice regardless of outcome")
	assert.Equal(t, 1, handler.refreshCalls)
}

func TestInvokeRecoveryFailure(t *testing.T) {
	handler := &fakeRefreshHandler{refreshOK: false}
	m := NewMiddleware(handler)

	// First Ensure succeeds, then every re-authentication fails.
	calls := 0
	_, err := Invoke(context.Background(), m, func(ctx context.Context) (string, error) {
		calls++
		handler.authErr = errors.New("idp unreachable")
		return "", unauthorized()
	})

	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, calls, "no retry without a successful recovery")
}

func TestInvokeAsyncDeliversResult(t *testing.T) {
	handler := &fakeHandler{}
	m := NewMiddleware(handler)

	result := <-InvokeAsync(context.Background(), m, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 42, result.Value)
}

func TestLogoutResetsSession(t *testing.T) {
	handler := &fakeHandler{}
	m := NewMiddleware(handler)

	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 1, handler.logoutCalls)

	require.NoError(t, m.EnsureAuthenticated(context.Background()))
	assert.Equal(t, 2, handler.authCalls, "logout forgets the trusted session")
}
