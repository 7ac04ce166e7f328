package tokenstore

import "time"

// ExpiryBuffer is the margin applied when checking record validity.
// It accounts for clock skew, network latency, and long-running operations.
const ExpiryBuffer = 60 * time.Second

// Record is a stored OAuth2 token for one server identity.
//
// A Record is immutable once stored: refresh replaces the whole record
// rather than mutating fields, so a partially updated token can never be
// observed or persisted.
type Record struct {
	// AccessToken is the OAuth2 access token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the OAuth2 refresh token, if the provider issued one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresAt is the absolute expiry time in epoch seconds.
	// Zero means the token does not expire.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// Scope is the granted scope string, if returned by the provider.
	Scope string `json:"scope,omitempty"`
}

// NewRecord builds a Record from a token endpoint response. When the
// provider returned a relative expires_in rather than an absolute expiry,
// ExpiresAt is derived once, at creation time.
func NewRecord(accessToken, refreshToken, tokenType, scope string, expiresIn int64) *Record {
	if tokenType == "" {
		tokenType = "Bearer"
	}

	r := &Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		Scope:        scope,
	}

	if expiresIn > 0 {
		r.ExpiresAt = time.Now().Unix() + expiresIn
	}

	return r
}

// ExpiredAt reports whether the record is expired (or will expire within
// buffer) relative to now. Records without an expiry never expire.
func (r *Record) ExpiredAt(now time.Time, buffer time.Duration) bool {
	if r == nil {
		return true
	}
	if r.ExpiresAt == 0 {
		return false
	}
	return now.Add(buffer).Unix() >= r.ExpiresAt
}

// Expired reports whether the record is expired using the default buffer.
func (r *Record) Expired() bool {
	return r.ExpiredAt(time.Now(), ExpiryBuffer)
}

// AuthorizationValue returns the value for an Authorization header,
// e.g. "Bearer <access-token>".
func (r *Record) AuthorizationValue() string {
	typ := r.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + r.AccessToken
}
