package clients_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/clients/repofake"
	"github.com/questlog/identity/oauthmodel"
)

func newAuthenticator(t *testing.T) (*clients.Authenticator, *repofake.FakeClientRepo) {
	t.Helper()
	repo := repofake.NewFakeClientRepo()

	secretHash, err := clients.HashSecret("correct-secret")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(context.Background(), &clients.Client{
		ID:         "confidential",
		SecretHash: secretHash,
	}))
	require.NoError(t, repo.Upsert(context.Background(), &clients.Client{
		ID:     "mobile",
		Public: true,
	}))

	authenticator, err := clients.NewAuthenticator(repo)
	require.NoError(t, err)
	return authenticator, repo
}

func TestAuthenticator_Authenticate(t *testing.T) {
	authenticator, _ := newAuthenticator(t)

	t.Run("confidential client with correct secret", func(t *testing.T) {
		client, err := authenticator.Authenticate(context.Background(), clients.Credentials{
			ClientID: "confidential", ClientSecret: "correct-secret",
		})
		require.NoError(t, err)
		require.Equal(t, "confidential", client.ID)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		_, err := authenticator.Authenticate(context.Background(), clients.Credentials{
			ClientID: "confidential", ClientSecret: "wrong",
		})
		require.Error(t, err)
		oauthErr, ok := oauthmodel.AsError(err)
		require.True(t, ok)
		require.Equal(t, "INVALID_CLIENT", oauthErr.Code)
	})

	t.Run("empty secret rejected for confidential clients", func(t *testing.T) {
		_, err := authenticator.Authenticate(context.Background(), clients.Credentials{ClientID: "confidential"})
		require.Error(t, err)
	})

	t.Run("public client passes without a secret", func(t *testing.T) {
		client, err := authenticator.Authenticate(context.Background(), clients.Credentials{ClientID: "mobile"})
		require.NoError(t, err)
		require.True(t, client.IsPublic())
	})

	t.Run("unknown client rejected", func(t *testing.T) {
		_, err := authenticator.Authenticate(context.Background(), clients.Credentials{ClientID: "ghost"})
		require.Error(t, err)
	})

	t.Run("missing client id rejected", func(t *testing.T) {
		_, err := authenticator.Authenticate(context.Background(), clients.Credentials{})
		require.Error(t, err)
	})
}

func TestCredentialsFromRequest(t *testing.T) {
	t.Run("basic auth wins over form fields", func(t *testing.T) {
		form := url.Values{"client_id": {"form-client"}, "client_secret": {"form-secret"}}
		req, err := http.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("basic-client", "basic-secret")

		creds := clients.CredentialsFromRequest(req)
		require.Equal(t, "basic-client", creds.ClientID)
		require.Equal(t, "basic-secret", creds.ClientSecret)
	})

	t.Run("falls back to form fields", func(t *testing.T) {
		form := url.Values{"client_id": {"form-client"}, "client_secret": {"form-secret"}}
		req, err := http.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		creds := clients.CredentialsFromRequest(req)
		require.Equal(t, "form-client", creds.ClientID)
		require.Equal(t, "form-secret", creds.ClientSecret)
	})
}
