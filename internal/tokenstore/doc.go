// Package tokenstore provides secure at-rest storage for OAuth2 tokens.
//
// Two backends are supported:
//   - Keyring: the OS-native credential store (macOS Keychain, Windows
//     Credential Manager, the Secret Service on Linux)
//   - EncryptedFile: a single XChaCha20-Poly1305 encrypted blob in the
//     per-OS user configuration directory
//
// The Manager selects the keyring when it is functional and falls back to
// the encrypted file otherwise. Backend availability is probed exactly once
// at construction, never per call.
//
// SECURITY: Token values are never logged. Files are created with 0600
// permissions and the storage directory with 0700. Manager.Get rejects
// records that expire within a 60-second buffer, so stale credentials are
// never handed out.
package tokenstore
