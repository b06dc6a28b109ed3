// Package authrequest stores in-flight authorization requests: the ephemeral
// state between /authorize/prepare and the user's approve/deny decision.
package authrequest

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the request id is unknown or already consumed.
var ErrNotFound = errors.New("authorization request not found")

// ErrExpired indicates the request existed but its TTL has elapsed. Repos
// drop the entry when they report this, so callers can surface the expiry
// to the user exactly once.
var ErrExpired = errors.New("authorization request expired")

// Request is one pending authorization request. Exactly one exists per ID;
// it is destroyed on approve, deny or expiry.
type Request struct {
	ID                  string    `json:"id"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"` // normalized, space-separated
	State               string    `json:"state"`
	Nonce               string    `json:"nonce"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Prompt              string    `json:"prompt,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the request is past its TTL at the given instant.
func (r *Request) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Repo stores pending authorization requests with a bounded lifetime.
type Repo interface {
	Put(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Delete(ctx context.Context, id string) error
}
