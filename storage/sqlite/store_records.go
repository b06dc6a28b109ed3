package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/questlog/identity/token"
)

var _ token.RecordRepo = (*RecordStore)(nil)

// RecordStore implements token.RecordRepo on SQLite.
type RecordStore struct {
	db *sql.DB
}

const recordColumns = `id, client_id, user_id, access_jti, id_jti, refresh_hash, scope,
	access_expires_at, refresh_expires_at, revoked_at, created_at`

// Create stores a new issued-token record.
func (s *RecordStore) Create(ctx context.Context, record *token.IssuedTokenRecord) error {
	err := insertRecord(ctx, s.db, record)
	return errors.Wrap(err, "[RecordStore.Create]")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, record *token.IssuedTokenRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO issued_tokens (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ClientID,
		record.UserID,
		record.AccessJTI,
		record.IDJTI,
		record.RefreshHash,
		record.Scope,
		toMillis(record.AccessExpiresAt),
		toMillis(record.RefreshExpiresAt),
		nullMillisPtr(record.RevokedAt),
		toMillis(record.CreatedAt),
	)
	return errors.Wrap(err, "insert issued token")
}

func nullMillisPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// GetByRefreshHash returns the newest live record for the (client, hash)
// pair.
func (s *RecordStore) GetByRefreshHash(ctx context.Context, clientID, hash string) (*token.IssuedTokenRecord, error) {
	if hash == "" {
		return nil, token.ErrRecordNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM issued_tokens
		WHERE client_id = ? AND refresh_hash = ? AND revoked_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, clientID, hash)
	return scanRecord(row, "[RecordStore.GetByRefreshHash]")
}

// FindByRefreshHash is the client-agnostic lookup used by revocation.
func (s *RecordStore) FindByRefreshHash(ctx context.Context, hash string) (*token.IssuedTokenRecord, error) {
	if hash == "" {
		return nil, token.ErrRecordNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM issued_tokens
		WHERE refresh_hash = ? AND revoked_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, hash)
	return scanRecord(row, "[RecordStore.FindByRefreshHash]")
}

// GetByJTI matches either the access or the id token jti.
func (s *RecordStore) GetByJTI(ctx context.Context, jti string) (*token.IssuedTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM issued_tokens
		WHERE access_jti = ? OR id_jti = ? LIMIT 1`, jti, jti)
	return scanRecord(row, "[RecordStore.GetByJTI]")
}

// Revoke sets revoked_at on a live record. Already-revoked records keep
// their original revocation time.
func (s *RecordStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(at), id)
	return errors.Wrap(err, "[RecordStore.Revoke] update revoked_at")
}

// Rotate revokes the old record and inserts its successor inside one
// transaction, so a failed insert leaves the old token usable.
func (s *RecordStore) Rotate(ctx context.Context, oldID string, at time.Time, next *token.IssuedTokenRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[RecordStore.Rotate] begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(at), oldID)
	if err != nil {
		return errors.Wrap(err, "[RecordStore.Rotate] revoke old record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Someone else rotated or revoked this record first.
		return errors.Wrap(token.ErrRecordNotFound, "[RecordStore.Rotate] old record not live")
	}

	if err := insertRecord(ctx, tx, next); err != nil {
		return errors.Wrap(err, "[RecordStore.Rotate]")
	}
	return errors.Wrap(tx.Commit(), "[RecordStore.Rotate] commit")
}

func scanRecord(row rowScanner, prefix string) (*token.IssuedTokenRecord, error) {
	var (
		record                        token.IssuedTokenRecord
		accessExp, refreshExp, create int64
		revokedAt                     sql.NullInt64
	)
	err := row.Scan(
		&record.ID,
		&record.ClientID,
		&record.UserID,
		&record.AccessJTI,
		&record.IDJTI,
		&record.RefreshHash,
		&record.Scope,
		&accessExp,
		&refreshExp,
		&revokedAt,
		&create,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, token.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, prefix+" scan record")
	}
	record.AccessExpiresAt = fromMillis(accessExp)
	record.RefreshExpiresAt = fromMillis(refreshExp)
	record.CreatedAt = fromMillis(create)
	if revokedAt.Valid {
		t := fromMillis(revokedAt.Int64)
		record.RevokedAt = &t
	}
	return &record, nil
}
