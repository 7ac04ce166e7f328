package tokenstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord_DerivesExpiry(t *testing.T) {
	before := time.Now().Unix()
	rec := NewRecord("access", "refresh", "", "openid", 3600)
	after := time.Now().Unix()

	assert.Equal(t, "Bearer", rec.TokenType, "token type should default to Bearer")
	assert.GreaterOrEqual(t, rec.ExpiresAt, before+3600)
	assert.LessOrEqual(t, rec.ExpiresAt, after+3600)
}

func TestNewRecord_NoExpiry(t *testing.T) {
	rec := NewRecord("access", "", "Bearer", "", 0)
	assert.Zero(t, rec.ExpiresAt)
	assert.False(t, rec.ExpiredAt(time.Now().Add(24*time.Hour), ExpiryBuffer))
}

func TestRecord_ExpiredAt(t *testing.T) {
	now := time.Now()
	rec := &Record{
		AccessToken: "access",
		TokenType:   "Bearer",
		ExpiresAt:   now.Unix() + 3600,
	}

	// Without a buffer the boundary is the expiry instant itself.
	assert.False(t, rec.ExpiredAt(now.Add(3599*time.Second), 0))
	assert.True(t, rec.ExpiredAt(now.Add(3601*time.Second), 0))

	// With the 60s buffer the record is effectively expired a minute early.
	assert.False(t, rec.ExpiredAt(now.Add(3539*time.Second), ExpiryBuffer))
	assert.True(t, rec.ExpiredAt(now.Add(3541*time.Second), ExpiryBuffer))
	assert.True(t, rec.ExpiredAt(now.Add(3599*time.Second), ExpiryBuffer))
}

func TestRecord_AuthorizationValue(t *testing.T) {
	rec := &Record{AccessToken: "tok", TokenType: "Bearer"}
	assert.Equal(t, "Bearer tok", rec.AuthorizationValue())

	rec = &Record{AccessToken: "tok"}
	assert.Equal(t, "Bearer tok", rec.AuthorizationValue(), "missing type defaults to Bearer")
}

func TestRecord_NilExpired(t *testing.T) {
	var rec *Record
	assert.True(t, rec.ExpiredAt(time.Now(), 0))
}
