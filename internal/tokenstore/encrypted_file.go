package tokenstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// blobFileName is the encrypted blob holding every server's record.
	blobFileName = "tokens.enc"

	// keyFileName is the sibling symmetric key file, owner-access only.
	keyFileName = ".key"
)

// DefaultStorageDir returns the per-OS application-data directory used for
// the encrypted file backend.
func DefaultStorageDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, "carrel", "tokens"), nil
}

// EncryptedFileBackend stores all records in one XChaCha20-Poly1305
// encrypted blob. Every operation decrypts the full blob, mutates one
// entry, re-encrypts, and rewrites the file. Acceptable because storage
// operations happen at login/refresh frequency, not on a hot path.
//
// The backend carries no inter-process locking; two processes sharing the
// file race with last-writer-wins, which is tolerable since issuing or
// refreshing a token is idempotent from the server's perspective.
type EncryptedFileBackend struct {
	mu       sync.Mutex
	dir      string
	blobPath string
	keyPath  string
	aead     cipher.AEAD
}

// NewEncryptedFileBackend constructs the backend rooted at dir, creating
// the directory and symmetric key on first use. An empty dir selects the
// per-OS default.
func NewEncryptedFileBackend(dir string) (*EncryptedFileBackend, error) {
	if dir == "" {
		var err error
		dir, err = DefaultStorageDir()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	b := &EncryptedFileBackend{
		dir:      dir,
		blobPath: filepath.Join(dir, blobFileName),
		keyPath:  filepath.Join(dir, keyFileName),
	}

	key, err := b.ensureKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	b.aead = aead

	slog.Debug("Using encrypted file token storage", "dir", dir)
	return b, nil
}

// ensureKey loads the symmetric key, generating it on first use. The key
// file is restricted to owner access where the platform supports file
// permissions; the mode is re-applied on every load in case it drifted.
func (b *EncryptedFileBackend) ensureKey() ([]byte, error) {
	data, err := os.ReadFile(b.keyPath)
	if os.IsNotExist(err) {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(key)
		if err := os.WriteFile(b.keyPath, []byte(encoded), 0600); err != nil {
			return nil, fmt.Errorf("failed to write encryption key: %w", err)
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}

	_ = os.Chmod(b.keyPath, 0600)

	key, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key has wrong length: %d bytes", len(key))
	}
	return key, nil
}

// load decrypts the full blob into a map of server identity to record.
// A missing blob is an empty store.
func (b *EncryptedFileBackend) load() (map[string]*Record, error) {
	data, err := os.ReadFile(b.blobPath)
	if os.IsNotExist(err) {
		return map[string]*Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token blob: %w", err)
	}

	if len(data) < b.aead.NonceSize() {
		return nil, fmt.Errorf("token blob truncated: %d bytes", len(data))
	}

	nonce, ciphertext := data[:b.aead.NonceSize()], data[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token blob: %w", err)
	}

	tokens := map[string]*Record{}
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token blob: %w", err)
	}
	return tokens, nil
}

// save re-encrypts the full map and rewrites the blob with restrictive
// permissions.
func (b *EncryptedFileBackend) save(tokens map[string]*Record) error {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal token blob: %w", err)
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := b.aead.Seal(nonce, nonce, plaintext, nil)
	if err := os.WriteFile(b.blobPath, ciphertext, 0600); err != nil {
		return fmt.Errorf("failed to write token blob: %w", err)
	}
	_ = os.Chmod(b.blobPath, 0600)
	return nil
}

// Store persists the record for the server inside the encrypted blob.
func (b *EncryptedFileBackend) Store(server string, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.load()
	if err != nil {
		return err
	}
	tokens[server] = rec
	if err := b.save(tokens); err != nil {
		return err
	}

	slog.Debug("Token stored in encrypted file", "server", server)
	return nil
}

// Get returns the stored record for the server, or nil if absent.
func (b *EncryptedFileBackend) Get(server string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.load()
	if err != nil {
		return nil, err
	}
	return tokens[server], nil
}

// Delete removes the record for the server from the blob.
func (b *EncryptedFileBackend) Delete(server string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[server]; !ok {
		return nil
	}
	delete(tokens, server)
	if err := b.save(tokens); err != nil {
		return err
	}

	slog.Debug("Token deleted from encrypted file", "server", server)
	return nil
}

// ListServers returns every server identity present in the blob.
func (b *EncryptedFileBackend) ListServers() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.load()
	if err != nil {
		return nil, err
	}
	servers := make([]string, 0, len(tokens))
	for server := range tokens {
		servers = append(servers, server)
	}
	return servers, nil
}
