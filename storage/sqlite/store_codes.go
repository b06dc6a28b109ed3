package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/questlog/identity/oidc/authcode"
)

var _ authcode.Repo = (*CodeStore)(nil)

// CodeStore implements authcode.Repo on SQLite.
type CodeStore struct {
	db *sql.DB
}

// Create stores a new authorization code.
func (s *CodeStore) Create(ctx context.Context, code *authcode.Code) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authorization_codes
			(code, client_id, user_id, redirect_uri, scope, nonce,
			 code_challenge, code_challenge_method, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		code.Code,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		code.Scope,
		code.Nonce,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		toMillis(code.ExpiresAt),
		toMillis(code.CreatedAt),
	)
	return errors.Wrap(err, "[CodeStore.Create] insert code")
}

// Consume atomically marks the code used and returns it. The UPDATE's
// used_at IS NULL guard is the compare-and-swap: of two concurrent
// exchanges only one sees RowsAffected == 1.
func (s *CodeStore) Consume(ctx context.Context, codeValue string, now time.Time) (*authcode.Code, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE authorization_codes SET used_at = ? WHERE code = ? AND used_at IS NULL`,
		toMillis(now), codeValue)
	if err != nil {
		return nil, errors.Wrap(err, "[CodeStore.Consume] mark used")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "[CodeStore.Consume] rows affected")
	}
	if n == 0 {
		// Either the code never existed or it was consumed before.
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM authorization_codes WHERE code = ?`, codeValue).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcode.ErrNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "[CodeStore.Consume] existence check")
		}
		return nil, authcode.ErrAlreadyUsed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT code, client_id, user_id, redirect_uri, scope, nonce,
		       code_challenge, code_challenge_method, expires_at, used_at, created_at
		FROM authorization_codes WHERE code = ?`, codeValue)

	var (
		code                 authcode.Code
		expiresAt, createdAt int64
		usedAt               sql.NullInt64
	)
	if err := row.Scan(
		&code.Code,
		&code.ClientID,
		&code.UserID,
		&code.RedirectURI,
		&code.Scope,
		&code.Nonce,
		&code.CodeChallenge,
		&code.CodeChallengeMethod,
		&expiresAt,
		&usedAt,
		&createdAt,
	); err != nil {
		return nil, errors.Wrap(err, "[CodeStore.Consume] scan code")
	}
	code.ExpiresAt = fromMillis(expiresAt)
	code.CreatedAt = fromMillis(createdAt)
	if usedAt.Valid {
		t := fromMillis(usedAt.Int64)
		code.UsedAt = &t
	}
	return &code, nil
}
