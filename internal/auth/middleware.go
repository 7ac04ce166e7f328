package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carrel/internal/client"
)

// RecheckInterval bounds how long a session is trusted before the next
// EnsureAuthenticated re-validates it.
const RecheckInterval = 30 * time.Minute

// Middleware guards API calls with the authentication state machine:
// ensure a session before the call, and on an Unauthorized result make at
// most one recovery attempt (refresh preferred, full re-authentication
// otherwise) followed by at most one retry of the call.
type Middleware struct {
	handler Handler

	mu            sync.Mutex
	authenticated bool
	lastCheck     time.Time

	// now is swapped in tests to simulate clock advancement.
	now func() time.Time
}

// NewMiddleware wraps a session handler.
func NewMiddleware(handler Handler) *Middleware {
	return &Middleware{handler: handler, now: time.Now}
}

// EnsureAuthenticated establishes a session when none is trusted. A
// session validated within RecheckInterval is trusted without traffic.
func (m *Middleware) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	trusted := m.authenticated && m.now().Sub(m.lastCheck) < RecheckInterval
	m.mu.Unlock()
	if trusted {
		return nil
	}

	if err := m.handler.Authenticate(ctx); err != nil {
		m.markUnauthenticated()
		return err
	}
	m.markAuthenticated()
	return nil
}

func (m *Middleware) markAuthenticated() {
	m.mu.Lock()
	m.authenticated = true
	m.lastCheck = m.now()
	m.mu.Unlock()
}

func (m *Middleware) markUnauthenticated() {
	m.mu.Lock()
	m.authenticated = false
	m.mu.Unlock()
}

// recover makes the single bounded recovery attempt after an Unauthorized
// result. Refresh is preferred because it needs no user interaction.
func (m *Middleware) recover(ctx context.Context) bool {
	if refresher, ok := m.handler.(Refresher); ok {
		if refresher.Refresh(ctx) {
			slog.Debug("Recovered session via token refresh")
			m.markAuthenticated()
			return true
		}
	}

	if err := m.handler.Authenticate(ctx); err != nil {
		slog.Warn("Re-authentication after unauthorized response failed",
			"error", err.Error(),
		)
		m.markUnauthenticated()
		return false
	}
	m.markAuthenticated()
	return true
}

// Logout tears the session down and forgets the trusted state.
func (m *Middleware) Logout(ctx context.Context) error {
	m.markUnauthenticated()
	return m.handler.Logout(ctx)
}

// Result carries the outcome of an asynchronous invocation.
type Result[T any] struct {
	Value T
	Err   error
}

// Invoke runs call under the middleware's protection. The call is retried
// at most once, and only after a successful recovery; an Unauthorized
// result that survives recovery surfaces as *AuthRequiredError.
func Invoke[T any](ctx context.Context, m *Middleware, call func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := m.EnsureAuthenticated(ctx); err != nil {
		return zero, &AuthRequiredError{Err: err}
	}

	value, err := call(ctx)
	if err == nil || !client.IsUnauthorized(err) {
		return value, err
	}

	slog.Info("Unauthorized response, attempting recovery")
	if !m.recover(ctx) {
		return zero, &AuthRequiredError{Err: err}
	}

	value, err = call(ctx)
	if err != nil && client.IsUnauthorized(err) {
		m.markUnauthenticated()
		return zero, &AuthRequiredError{Err: err}
	}
	return value, err
}

// InvokeAsync runs Invoke on its own goroutine, delivering the outcome on
// the returned channel. The channel is buffered; the result is never lost
// to a slow receiver.
func InvokeAsync[T any](ctx context.Context, m *Middleware, call func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		value, err := Invoke(ctx, m, call)
		out <- Result[T]{Value: value, Err: err}
	}()
	return out
}
