// Package sqlite provides SQLite-backed implementations of the repository
// interfaces used by the identity service. Store owns the database handle;
// Clients, Users, Codes, Consents and Records expose typed views that
// satisfy clients.Repo, users.Repo, authcode.Repo, consent.Repo and
// token.RecordRepo respectively.
package sqlite

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a SQLite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// the schema. The DSN enables WAL journaling and foreign keys so the
// store behaves sensibly under concurrent readers.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[Open] sql.Open")
	}
	// modernc sqlite serializes writes internally but a single writer
	// connection avoids SQLITE_BUSY churn under load.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[Open] apply schema")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Clients returns the registered-client repository view.
func (s *Store) Clients() *ClientStore { return &ClientStore{db: s.db} }

// Users returns the user repository view.
func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

// Codes returns the authorization-code repository view.
func (s *Store) Codes() *CodeStore { return &CodeStore{db: s.db} }

// Consents returns the remembered-consent repository view.
func (s *Store) Consents() *ConsentStore { return &ConsentStore{db: s.db} }

// Records returns the issued-token record repository view.
func (s *Store) Records() *RecordStore { return &RecordStore{db: s.db} }

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func encodeList(vs []string) string {
	if len(vs) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(vs)
	return string(b)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var vs []string
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil, errors.Wrap(err, "[decodeList] json.Unmarshal")
	}
	return vs, nil
}
