package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/questlog/identity/users"
)

var _ users.Repo = (*UserStore)(nil)

// ErrUserNotFound indicates no user row matched the id.
var ErrUserNotFound = errors.New("user not found")

// UserStore implements users.Repo on SQLite.
type UserStore struct {
	db *sql.DB
}

const userColumns = `id, canonical_id, email, email_verified, username, first_name, last_name,
	picture, locale, phone_number, phone_verified, status, system_admin, privacy_denied, created_at`

// Upsert inserts or replaces a user record. CanonicalID is write-once:
// updates never clear an assigned canonical id.
func (s *UserStore) Upsert(ctx context.Context, user *users.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			canonical_id = CASE WHEN users.canonical_id = '' THEN excluded.canonical_id ELSE users.canonical_id END,
			email = excluded.email,
			email_verified = excluded.email_verified,
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			picture = excluded.picture,
			locale = excluded.locale,
			phone_number = excluded.phone_number,
			phone_verified = excluded.phone_verified,
			status = excluded.status,
			system_admin = excluded.system_admin,
			privacy_denied = excluded.privacy_denied`,
		user.ID,
		user.CanonicalID,
		user.Email,
		user.EmailVerified,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Picture,
		user.Locale,
		user.PhoneNumber,
		user.PhoneVerified,
		string(user.Status),
		user.SystemAdmin,
		encodeList(user.PrivacyDenied),
		toMillis(user.CreatedAt),
	)
	return errors.Wrap(err, "[UserStore.Upsert] insert user")
}

// GetByID returns the user with the given local id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	var (
		user          users.User
		status        string
		privacyDenied string
		createdAt     int64
	)
	err := row.Scan(
		&user.ID,
		&user.CanonicalID,
		&user.Email,
		&user.EmailVerified,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Picture,
		&user.Locale,
		&user.PhoneNumber,
		&user.PhoneVerified,
		&status,
		&user.SystemAdmin,
		&privacyDenied,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrUserNotFound, "[UserStore.GetByID] "+id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserStore.GetByID] scan user")
	}

	user.Status = users.Status(status)
	user.CreatedAt = fromMillis(createdAt)
	if user.PrivacyDenied, err = decodeList(privacyDenied); err != nil {
		return nil, errors.Wrap(err, "[UserStore.GetByID] privacy_denied")
	}
	return &user, nil
}

// SetStatus updates the lifecycle status of a user.
func (s *UserStore) SetStatus(ctx context.Context, id string, status users.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return errors.Wrap(err, "[UserStore.SetStatus] update status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(ErrUserNotFound, "[UserStore.SetStatus] "+id)
	}
	return nil
}
