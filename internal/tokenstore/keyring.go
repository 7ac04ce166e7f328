package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the fixed namespace under which records are stored in
// the OS credential store.
const KeyringService = "carrel"

// keyringProbeKey is the canary entry used to detect keyring availability.
const keyringProbeKey = "carrel-availability-probe"

// KeyringBackend stores token records in the OS-native credential store.
//
// Availability is probed once at construction: a canary secret is written,
// read back, and deleted. If any step fails (headless host, missing Secret
// Service, locked keychain) construction returns an error and the caller
// falls back to the encrypted file backend.
type KeyringBackend struct {
	mu sync.Mutex

	// known tracks server identities stored through this instance.
	// The OS keyring cannot enumerate its own keys, so ListServers is
	// best-effort and limited to the current process.
	known map[string]struct{}
}

// NewKeyringBackend constructs a keyring backend, probing the OS credential
// store for availability.
func NewKeyringBackend() (*KeyringBackend, error) {
	if err := probeKeyring(); err != nil {
		return nil, fmt.Errorf("keyring unavailable: %w", err)
	}

	slog.Debug("Using OS keyring for token storage", "service", KeyringService)
	return &KeyringBackend{known: make(map[string]struct{})}, nil
}

func probeKeyring() error {
	if err := keyring.Set(KeyringService, keyringProbeKey, "ok"); err != nil {
		return err
	}
	if _, err := keyring.Get(KeyringService, keyringProbeKey); err != nil {
		return err
	}
	return keyring.Delete(KeyringService, keyringProbeKey)
}

// keyFor sanitizes a server identity into a keyring account name.
func keyFor(server string) string {
	return KeyringService + ":" + strings.NewReplacer("://", "_", "/", "_").Replace(server)
}

// Store serializes the record and writes it as the secret value.
func (b *KeyringBackend) Store(server string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	if err := keyring.Set(KeyringService, keyFor(server), string(data)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}

	b.mu.Lock()
	b.known[server] = struct{}{}
	b.mu.Unlock()

	slog.Debug("Token stored in keyring", "server", server)
	return nil
}

// Get reads and deserializes the record for the server.
func (b *KeyringBackend) Get(server string) (*Record, error) {
	data, err := keyring.Get(KeyringService, keyFor(server))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}

	return &rec, nil
}

// Delete removes the record for the server.
func (b *KeyringBackend) Delete(server string) error {
	err := keyring.Delete(KeyringService, keyFor(server))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}

	b.mu.Lock()
	delete(b.known, server)
	b.mu.Unlock()

	slog.Debug("Token deleted from keyring", "server", server)
	return nil
}

// ListServers returns the servers stored through this instance, sorted.
// The OS keyring provides no key enumeration, so servers stored by other
// processes are not reported.
func (b *KeyringBackend) ListServers() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	servers := make([]string, 0, len(b.known))
	for server := range b.known {
		servers = append(servers, server)
	}
	sort.Strings(servers)
	return servers, nil
}
