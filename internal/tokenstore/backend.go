package tokenstore

// Backend persists token records keyed by server identity (the base URL of
// the protected server). One record is kept per identity.
//
// Implementations return (nil, nil) from Get when no record exists; an
// error indicates the backend itself failed.
type Backend interface {
	// Store persists a record for the server, replacing any existing one.
	Store(server string, rec *Record) error

	// Get returns the stored record for the server, or nil if absent.
	// Expiry is not considered here; that is the Manager's concern.
	Get(server string) (*Record, error)

	// Delete removes the record for the server. Deleting a missing record
	// is not an error.
	Delete(server string) error

	// ListServers returns the server identities with stored records.
	// This is best-effort: the keyring backend can only report servers
	// stored by the current process.
	ListServers() ([]string, error)
}
