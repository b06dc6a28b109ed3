package clients

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/questlog/identity/oauthmodel"
	"golang.org/x/crypto/bcrypt"
)

// Credentials are client credentials as presented at the token endpoint,
// via HTTP Basic auth or request-body fields.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsFromRequest extracts client credentials from a token-endpoint
// request. HTTP Basic auth (client_id:client_secret) takes precedence over
// form fields.
func CredentialsFromRequest(r *http.Request) Credentials {
	if id, secret, ok := r.BasicAuth(); ok {
		return Credentials{ClientID: id, ClientSecret: secret}
	}
	return Credentials{
		ClientID:     r.FormValue("client_id"),
		ClientSecret: r.FormValue("client_secret"),
	}
}

// Authenticator validates client credentials against the client registry.
type Authenticator struct {
	repo Repo
}

// NewAuthenticator creates an Authenticator backed by the given client repo.
func NewAuthenticator(repo Repo) (*Authenticator, error) {
	if repo == nil {
		return nil, errors.New("[NewAuthenticator] client repo is required")
	}
	return &Authenticator{repo: repo}, nil
}

// Authenticate resolves the client and checks its secret. Confidential
// clients get a constant-time bcrypt comparison; public clients always pass
// this check because their security boundary is PKCE, not a shared secret.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Client, error) {
	if creds.ClientID == "" {
		return nil, oauthmodel.ErrInvalidClient
	}

	client, err := a.repo.Get(ctx, creds.ClientID)
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidClient, "[Authenticator.Authenticate] unknown client")
	}

	if client.IsPublic() {
		return client, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(creds.ClientSecret)); err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidClient, "[Authenticator.Authenticate] secret mismatch")
	}
	return client, nil
}

// HashSecret hashes a client secret for storage.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "[HashSecret] bcrypt.GenerateFromPassword")
	}
	return string(bytes), nil
}
