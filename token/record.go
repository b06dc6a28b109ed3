package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

const refreshTokenLength = 32 // bytes of entropy, 256 bits

// ErrRecordNotFound indicates no matching issued-token record exists.
var ErrRecordNotFound = errors.New("issued token record not found")

// IssuedTokenRecord is the durable trace of one token issuance, initial or
// rotated. The raw refresh token is never stored; only its salted hash.
// Records are never physically deleted - revocation and rotation only set
// revoked_at, keeping the row for replay detection and audit.
type IssuedTokenRecord struct {
	ID               string
	ClientID         string
	UserID           string
	AccessJTI        string
	IDJTI            string
	RefreshHash      string // empty when no refresh token was issued
	Scope            string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// Revoked reports whether the record has been revoked.
func (r *IssuedTokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// RecordRepo stores issued-token records.
type RecordRepo interface {
	Create(ctx context.Context, record *IssuedTokenRecord) error

	// GetByRefreshHash returns the newest non-revoked record for the
	// (client, refresh hash) pair, or ErrRecordNotFound.
	GetByRefreshHash(ctx context.Context, clientID, hash string) (*IssuedTokenRecord, error)

	// FindByRefreshHash is the client-agnostic variant used by revocation,
	// where only the token value is presented.
	FindByRefreshHash(ctx context.Context, hash string) (*IssuedTokenRecord, error)

	// GetByJTI matches either the access or the id token jti.
	GetByJTI(ctx context.Context, jti string) (*IssuedTokenRecord, error)

	// Revoke sets revoked_at on a live record. Revoking an already-revoked
	// record is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error

	// Rotate revokes the old record and creates the next one as a single
	// unit of work: if creating next fails, the revoke must not be visible.
	Rotate(ctx context.Context, oldID string, at time.Time, next *IssuedTokenRecord) error
}

// NewRefreshTokenValue generates an opaque refresh token.
func NewRefreshTokenValue() (string, error) {
	bytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashRefreshToken derives the stored lookup hash for a refresh token value.
// HMAC-SHA256 keyed with a server-side salt keeps the hash deterministic for
// lookup while making stored hashes useless without the salt.
func HashRefreshToken(salt, token string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
