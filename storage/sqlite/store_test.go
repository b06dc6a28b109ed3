package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/consent"
	"github.com/questlog/identity/oidc/authcode"
	"github.com/questlog/identity/storage/sqlite"
	"github.com/questlog/identity/token"
	"github.com/questlog/identity/users"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClientStore(t *testing.T) {
	store := openStore(t)
	repo := store.Clients()
	ctx := context.Background()

	client := &clients.Client{
		ID:            "web-client",
		Name:          "Web Client",
		SecretHash:    "$2a$10$hash",
		RedirectURIs:  []string{"https://app.example.com/callback"},
		Scopes:        []string{"openid", "profile"},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
		FirstParty:    true,
	}
	require.NoError(t, repo.Upsert(ctx, client))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.Get(ctx, "web-client")
		require.NoError(t, err)
		require.Equal(t, client, got)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		updated := *client
		updated.Name = "Renamed"
		updated.Scopes = []string{"openid"}
		require.NoError(t, repo.Upsert(ctx, &updated))

		got, err := repo.Get(ctx, "web-client")
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Name)
		require.Equal(t, []string{"openid"}, got.Scopes)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := repo.Get(ctx, "ghost")
		require.Error(t, err)
	})

	t.Run("list and delete", func(t *testing.T) {
		list, err := repo.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, repo.Delete(ctx, "web-client"))
		list, err = repo.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestUserStore(t *testing.T) {
	store := openStore(t)
	repo := store.Users()
	ctx := context.Background()

	user := &users.User{
		ID:            "user-1",
		CanonicalID:   "canonical-1",
		Email:         "ada@example.com",
		EmailVerified: true,
		Username:      "ada",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Status:        users.StatusActive,
		PrivacyDenied: []string{"phone"},
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, repo.Upsert(ctx, user))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, user, got)
	})

	t.Run("canonical id is write-once", func(t *testing.T) {
		updated := *user
		updated.CanonicalID = "different"
		require.NoError(t, repo.Upsert(ctx, &updated))

		got, err := repo.GetByID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "canonical-1", got.CanonicalID)
	})

	t.Run("set status", func(t *testing.T) {
		require.NoError(t, repo.SetStatus(ctx, "user-1", users.StatusSuspended))
		got, err := repo.GetByID(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, got.Suspended())
	})

	t.Run("set status on unknown user", func(t *testing.T) {
		require.Error(t, repo.SetStatus(ctx, "ghost", users.StatusBanned))
	})
}

func TestCodeStore_Consume(t *testing.T) {
	store := openStore(t)
	repo := store.Codes()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	create := func(t *testing.T, value string) {
		t.Helper()
		require.NoError(t, repo.Create(ctx, &authcode.Code{
			Code:                value,
			ClientID:            "web-client",
			UserID:              "user-1",
			RedirectURI:         "https://app.example.com/callback",
			Scope:               "openid profile",
			Nonce:               "nonce-1",
			CodeChallenge:       "challenge",
			CodeChallengeMethod: "S256",
			ExpiresAt:           now.Add(5 * time.Minute),
			CreatedAt:           now,
		}))
	}

	t.Run("first consume returns the code", func(t *testing.T) {
		create(t, "code-1")
		code, err := repo.Consume(ctx, "code-1", now)
		require.NoError(t, err)
		require.Equal(t, "openid profile", code.Scope)
		require.NotNil(t, code.UsedAt)
		require.Equal(t, now, *code.UsedAt)
	})

	t.Run("second consume fails", func(t *testing.T) {
		_, err := repo.Consume(ctx, "code-1", now.Add(time.Second))
		require.ErrorIs(t, err, authcode.ErrAlreadyUsed)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.Consume(ctx, "no-such-code", now)
		require.ErrorIs(t, err, authcode.ErrNotFound)
	})
}

func TestConsentStore(t *testing.T) {
	store := openStore(t)
	repo := store.Consents()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	grant := &consent.Consent{
		UserID:     "user-1",
		ClientID:   "web-client",
		Scopes:     []string{"openid", "profile"},
		GrantedAt:  now,
		LastUsedAt: now,
	}
	require.NoError(t, repo.Upsert(ctx, grant))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.Get(ctx, "user-1", "web-client")
		require.NoError(t, err)
		require.Equal(t, grant, got)
	})

	t.Run("missing consent", func(t *testing.T) {
		_, err := repo.Get(ctx, "user-1", "other-client")
		require.ErrorIs(t, err, consent.ErrNotFound)
	})

	t.Run("touch bumps last_used_at", func(t *testing.T) {
		later := now.Add(time.Hour)
		require.NoError(t, repo.Touch(ctx, "user-1", "web-client", later))

		got, err := repo.Get(ctx, "user-1", "web-client")
		require.NoError(t, err)
		require.Equal(t, later, got.LastUsedAt)
	})

	t.Run("touch on missing consent is a no-op", func(t *testing.T) {
		require.NoError(t, repo.Touch(ctx, "ghost", "web-client", now))
	})
}

func TestRecordStore(t *testing.T) {
	store := openStore(t)
	repo := store.Records()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := func(id, hash string) *token.IssuedTokenRecord {
		return &token.IssuedTokenRecord{
			ID:               id,
			ClientID:         "web-client",
			UserID:           "user-1",
			AccessJTI:        id + "-access",
			IDJTI:            id + "-id",
			RefreshHash:      hash,
			Scope:            "openid offline_access",
			AccessExpiresAt:  now.Add(30 * time.Minute),
			RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
			CreatedAt:        now,
		}
	}

	require.NoError(t, repo.Create(ctx, record("rec-1", "hash-1")))

	t.Run("lookup by refresh hash", func(t *testing.T) {
		got, err := repo.GetByRefreshHash(ctx, "web-client", "hash-1")
		require.NoError(t, err)
		require.Equal(t, "rec-1", got.ID)

		_, err = repo.GetByRefreshHash(ctx, "other-client", "hash-1")
		require.ErrorIs(t, err, token.ErrRecordNotFound)
	})

	t.Run("lookup by jti matches access and id jtis", func(t *testing.T) {
		got, err := repo.GetByJTI(ctx, "rec-1-access")
		require.NoError(t, err)
		require.Equal(t, "rec-1", got.ID)

		got, err = repo.GetByJTI(ctx, "rec-1-id")
		require.NoError(t, err)
		require.Equal(t, "rec-1", got.ID)
	})

	t.Run("rotate revokes old and creates next atomically", func(t *testing.T) {
		next := record("rec-2", "hash-2")
		next.CreatedAt = now.Add(time.Minute)
		require.NoError(t, repo.Rotate(ctx, "rec-1", now.Add(time.Minute), next))

		// Old hash no longer resolves to a live record.
		_, err := repo.GetByRefreshHash(ctx, "web-client", "hash-1")
		require.ErrorIs(t, err, token.ErrRecordNotFound)

		got, err := repo.GetByRefreshHash(ctx, "web-client", "hash-2")
		require.NoError(t, err)
		require.Equal(t, "rec-2", got.ID)

		// The revoked row survives for audit.
		old, err := repo.GetByJTI(ctx, "rec-1-access")
		require.NoError(t, err)
		require.True(t, old.Revoked())
	})

	t.Run("rotating a dead record fails", func(t *testing.T) {
		err := repo.Rotate(ctx, "rec-1", now.Add(2*time.Minute), record("rec-3", "hash-3"))
		require.ErrorIs(t, err, token.ErrRecordNotFound)
	})

	t.Run("revoke is idempotent and keeps the first timestamp", func(t *testing.T) {
		first := now.Add(3 * time.Minute)
		require.NoError(t, repo.Revoke(ctx, "rec-2", first))
		require.NoError(t, repo.Revoke(ctx, "rec-2", now.Add(time.Hour)))

		got, err := repo.GetByJTI(ctx, "rec-2-access")
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.Equal(t, first, *got.RevokedAt)
	})
}
