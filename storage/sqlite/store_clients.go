package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/oauthmodel"
)

var _ clients.Repo = (*ClientStore)(nil)

// ClientStore implements clients.Repo on SQLite.
type ClientStore struct {
	db *sql.DB
}

const clientColumns = `id, name, secret_hash, redirect_uris, scopes, grant_types, response_types, public, first_party`

// Upsert inserts or replaces a registered client.
func (s *ClientStore) Upsert(ctx context.Context, client *clients.Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			secret_hash = excluded.secret_hash,
			redirect_uris = excluded.redirect_uris,
			scopes = excluded.scopes,
			grant_types = excluded.grant_types,
			response_types = excluded.response_types,
			public = excluded.public,
			first_party = excluded.first_party`,
		client.ID,
		client.Name,
		client.SecretHash,
		encodeList(client.RedirectURIs),
		encodeList(client.Scopes),
		encodeList(client.GrantTypes),
		encodeList(client.ResponseTypes),
		client.Public,
		client.FirstParty,
	)
	return errors.Wrap(err, "[ClientStore.Upsert] insert client")
}

// Delete removes a client registration.
func (s *ClientStore) Delete(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, clientID)
	return errors.Wrap(err, "[ClientStore.Delete] delete client")
}

// Get returns the client with the given id.
func (s *ClientStore) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, clientID)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(oauthmodel.ErrClientNotFound, "[ClientStore.Get] "+clientID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ClientStore.Get] scan client")
	}
	return client, nil
}

// List returns registered clients ordered by id.
func (s *ClientStore) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientStore.List] query clients")
	}
	defer rows.Close()

	var out []*clients.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[ClientStore.List] scan client")
		}
		out = append(out, client)
	}
	return out, errors.Wrap(rows.Err(), "[ClientStore.List] rows")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*clients.Client, error) {
	var (
		client                                          clients.Client
		redirectURIs, scopes, grantTypes, responseTypes string
	)
	if err := row.Scan(
		&client.ID,
		&client.Name,
		&client.SecretHash,
		&redirectURIs,
		&scopes,
		&grantTypes,
		&responseTypes,
		&client.Public,
		&client.FirstParty,
	); err != nil {
		return nil, err
	}

	var err error
	if client.RedirectURIs, err = decodeList(redirectURIs); err != nil {
		return nil, err
	}
	if client.Scopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	if client.GrantTypes, err = decodeList(grantTypes); err != nil {
		return nil, err
	}
	if client.ResponseTypes, err = decodeList(responseTypes); err != nil {
		return nil, err
	}
	return &client, nil
}
