// Package authcode stores single-use authorization codes. A code is created
// when the user approves an authorization request and consumed exactly once
// by the token endpoint.
package authcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

const codeLength = 32 // bytes of entropy before encoding

var (
	// ErrNotFound indicates the code value is unknown.
	ErrNotFound = errors.New("authorization code not found")

	// ErrAlreadyUsed indicates the code was consumed before.
	ErrAlreadyUsed = errors.New("authorization code already used")
)

// Code is a single-use authorization code and the grant details it carries
// into the token exchange.
type Code struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string // final granted scope, space-separated
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// Expired reports whether the code is past its TTL at the given instant.
func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Repo stores authorization codes.
//
// Consume is the single-use guarantee: it sets used_at via compare-and-swap
// in the same statement that reads the row, so two concurrent exchanges of
// one code can never both succeed.
type Repo interface {
	Create(ctx context.Context, code *Code) error

	// Consume atomically marks the code used and returns it. Returns
	// ErrNotFound for an unknown value and ErrAlreadyUsed when used_at was
	// already set. A consumed code is never reset.
	Consume(ctx context.Context, code string, now time.Time) (*Code, error)
}

// NewCodeValue generates an opaque, URL-safe code value.
func NewCodeValue() (string, error) {
	bytes := make([]byte, codeLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
