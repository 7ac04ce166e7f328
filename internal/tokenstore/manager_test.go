package tokenstore

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	backend, err := NewEncryptedFileBackend(t.TempDir())
	require.NoError(t, err)
	return NewManagerWithBackend(backend, BackendEncryptedFile)
}

func TestManager_GetFresh(t *testing.T) {
	m := newTestManager(t)
	assert.Nil(t, m.Get("https://x"), "a fresh manager has no record")
}

func TestManager_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	rec := NewRecord("access", "refresh", "Bearer", "openid", 3600)
	require.NoError(t, m.Store("https://x", rec))

	got := m.Get("https://x")
	require.NotNil(t, got)
	assert.Equal(t, "access", got.AccessToken)

	require.NoError(t, m.Delete("https://x"))
	assert.Nil(t, m.Get("https://x"))
}

func TestManager_ExpiredRecordTreatedAsAbsent(t *testing.T) {
	m := newTestManager(t)

	rec := NewRecord("access", "", "Bearer", "", 10)
	require.NoError(t, m.Store("https://x", rec))

	// Simulate the clock advancing 11 seconds past issuance. With the
	// 60-second buffer the record is already unusable.
	m.now = func() time.Time { return time.Now().Add(11 * time.Second) }
	assert.Nil(t, m.Get("https://x"))

	// The raw backend still holds the record; only the manager filters it.
	raw, err := m.backend.Get("https://x")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestManager_PastExpiryInRawBackend(t *testing.T) {
	m := newTestManager(t)

	rec := &Record{
		AccessToken: "stale",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(-time.Hour).Unix(),
	}
	require.NoError(t, m.backend.Store("https://x", rec))

	raw, err := m.backend.Get("https://x")
	require.NoError(t, err)
	require.NotNil(t, raw, "record must be present in the raw backend")

	assert.Nil(t, m.Get("https://x"), "manager must treat the expired record as absent")
}

func TestManager_ClearAll(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Store("https://a", NewRecord("t1", "", "Bearer", "", 0)))
	require.NoError(t, m.Store("https://b", NewRecord("t2", "", "Bearer", "", 0)))
	require.Len(t, m.ListServers(), 2)

	require.NoError(t, m.ClearAll())
	assert.Empty(t, m.ListServers())
	assert.Nil(t, m.Get("https://a"))
	assert.Nil(t, m.Get("https://b"))
}

func TestNewManager_UnknownBackend(t *testing.T) {
	_, err := NewManager("vault")
	assert.Error(t, err)
}

func TestNewManager_FallsBackWhenKeyringUnavailable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME redirection only applies on linux")
	}

	keyring.MockInitWithError(assert.AnError)
	t.Cleanup(func() { keyring.MockInit() })

	// Keep the fallback's file store out of the real user config dir.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, BackendEncryptedFile, m.BackendName())
}
