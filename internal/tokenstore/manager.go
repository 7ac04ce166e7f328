package tokenstore

import (
	"fmt"
	"log/slog"
	"time"
)

// Backend names accepted by NewManager.
const (
	BackendKeyring       = "keyring"
	BackendEncryptedFile = "encrypted_file"
)

// Manager is the expiry-aware facade over a storage backend.
//
// It selects the OS keyring when functional, falling back to the encrypted
// file store, or honors an explicitly forced backend. Get treats records
// that expire within ExpiryBuffer as absent so stale credentials are never
// handed out.
type Manager struct {
	backend Backend
	name    string

	// now is swapped in tests to simulate clock advancement.
	now func() time.Time
}

// NewManager constructs a Manager. forced may be empty for automatic
// selection, or one of BackendKeyring / BackendEncryptedFile.
func NewManager(forced string) (*Manager, error) {
	switch forced {
	case BackendKeyring:
		backend, err := NewKeyringBackend()
		if err != nil {
			return nil, err
		}
		return newManager(backend, BackendKeyring), nil

	case BackendEncryptedFile:
		backend, err := NewEncryptedFileBackend("")
		if err != nil {
			return nil, err
		}
		return newManager(backend, BackendEncryptedFile), nil

	case "":
		if backend, err := NewKeyringBackend(); err == nil {
			return newManager(backend, BackendKeyring), nil
		} else {
			slog.Warn("OS keyring unavailable, falling back to encrypted file storage",
				"error", err.Error(),
			)
		}
		backend, err := NewEncryptedFileBackend("")
		if err != nil {
			return nil, err
		}
		return newManager(backend, BackendEncryptedFile), nil

	default:
		return nil, fmt.Errorf("unknown token storage backend: %q", forced)
	}
}

// NewManagerWithBackend wraps an explicit backend. Used by tests and by
// callers that manage backend construction themselves.
func NewManagerWithBackend(backend Backend, name string) *Manager {
	return newManager(backend, name)
}

func newManager(backend Backend, name string) *Manager {
	return &Manager{backend: backend, name: name, now: time.Now}
}

// BackendName returns the name of the selected backend.
func (m *Manager) BackendName() string {
	return m.name
}

// Get returns the stored record for the server, or nil when no record
// exists or the record expires within the 60-second buffer.
func (m *Manager) Get(server string) *Record {
	rec, err := m.backend.Get(server)
	if err != nil {
		slog.Warn("Failed to read token from storage",
			"server", server,
			"error", err.Error(),
		)
		return nil
	}
	if rec == nil {
		return nil
	}
	if rec.ExpiredAt(m.now(), ExpiryBuffer) {
		slog.Info("Stored token is expired", "server", server)
		return nil
	}
	return rec
}

// GetIncludingExpired returns the stored record for the server without the
// expiry check. Refresh needs the refresh token of an already expired
// record; everything else should use Get.
func (m *Manager) GetIncludingExpired(server string) *Record {
	rec, err := m.backend.Get(server)
	if err != nil {
		slog.Warn("Failed to read token from storage",
			"server", server,
			"error", err.Error(),
		)
		return nil
	}
	return rec
}

// Store persists a record for the server, replacing any existing one.
func (m *Manager) Store(server string, rec *Record) error {
	if err := m.backend.Store(server, rec); err != nil {
		slog.Warn("SECURITY_AUDIT: token storage failed",
			"event", "token_store_failed",
			"server", server,
			"error", err.Error(),
		)
		return err
	}
	slog.Info("SECURITY_AUDIT: token stored",
		"event", "token_stored",
		"server", server,
		"has_refresh_token", rec.RefreshToken != "",
	)
	return nil
}

// Delete removes the stored record for the server.
func (m *Manager) Delete(server string) error {
	if err := m.backend.Delete(server); err != nil {
		return err
	}
	slog.Info("SECURITY_AUDIT: token deleted",
		"event", "token_deleted",
		"server", server,
	)
	return nil
}

// ListServers returns the server identities with stored records,
// best-effort.
func (m *Manager) ListServers() []string {
	servers, err := m.backend.ListServers()
	if err != nil {
		slog.Warn("Failed to list stored servers", "error", err.Error())
		return nil
	}
	return servers
}

// ClearAll deletes every known server's record.
func (m *Manager) ClearAll() error {
	for _, server := range m.ListServers() {
		if err := m.Delete(server); err != nil {
			return err
		}
	}
	return nil
}
