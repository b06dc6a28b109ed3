// Package consent tracks which scopes a user has durably approved for a
// client, so the consent screen can be skipped on later authorizations.
package consent

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no consent exists for the (user, client) pair.
var ErrNotFound = errors.New("consent not found")

// Consent is a remembered grant, unique per (user, client).
type Consent struct {
	UserID     string
	ClientID   string
	Scopes     []string
	GrantedAt  time.Time
	LastUsedAt time.Time
}

// Covers reports whether every scope in the requested set was previously
// granted.
func (c *Consent) Covers(scopes []string) bool {
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// Repo stores remembered consents.
type Repo interface {
	Get(ctx context.Context, userID, clientID string) (*Consent, error)
	Upsert(ctx context.Context, consent *Consent) error

	// Touch bumps last_used_at. Best-effort metadata: callers must never let
	// a Touch failure gate token issuance.
	Touch(ctx context.Context, userID, clientID string, at time.Time) error
}
