package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/questlog/identity/consent"
)

var _ consent.Repo = (*ConsentStore)(nil)

// ConsentStore implements consent.Repo on SQLite.
type ConsentStore struct {
	db *sql.DB
}

// Get returns the remembered consent for the (user, client) pair.
func (s *ConsentStore) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, client_id, scopes, granted_at, last_used_at
		FROM consents WHERE user_id = ? AND client_id = ?`, userID, clientID)

	var (
		c                     consent.Consent
		scopes                string
		grantedAt, lastUsedAt int64
	)
	err := row.Scan(&c.UserID, &c.ClientID, &scopes, &grantedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, consent.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ConsentStore.Get] scan consent")
	}
	c.GrantedAt = fromMillis(grantedAt)
	c.LastUsedAt = fromMillis(lastUsedAt)
	if c.Scopes, err = decodeList(scopes); err != nil {
		return nil, errors.Wrap(err, "[ConsentStore.Get] scopes")
	}
	return &c, nil
}

// Upsert stores or replaces the consent. Re-granting replaces the scope set
// and resets granted_at.
func (s *ConsentStore) Upsert(ctx context.Context, c *consent.Consent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consents (user_id, client_id, scopes, granted_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, client_id) DO UPDATE SET
			scopes = excluded.scopes,
			granted_at = excluded.granted_at,
			last_used_at = excluded.last_used_at`,
		c.UserID,
		c.ClientID,
		encodeList(c.Scopes),
		toMillis(c.GrantedAt),
		toMillis(c.LastUsedAt),
	)
	return errors.Wrap(err, "[ConsentStore.Upsert] insert consent")
}

// Touch bumps last_used_at. Missing rows are ignored: touching is metadata
// maintenance, not a correctness operation.
func (s *ConsentStore) Touch(ctx context.Context, userID, clientID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE consents SET last_used_at = ? WHERE user_id = ? AND client_id = ?`,
		toMillis(at), userID, clientID)
	return errors.Wrap(err, "[ConsentStore.Touch] update last_used_at")
}
