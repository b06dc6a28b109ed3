package federation

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

// OIDCProvider federates through any standard OpenID Connect issuer
// using its discovery document (Google, Microsoft, Keycloak and friends).
type OIDCProvider struct {
	name     string
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	breaker  *gobreaker.CircuitBreaker
}

// NewOIDCProvider discovers the issuer's endpoints and configures the
// provider under the given registry name.
func NewOIDCProvider(ctx context.Context, name, issuerURL, clientID, clientSecret string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] discover issuer")
	}
	return &OIDCProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		breaker:  newBreaker(name),
	}, nil
}

func (p *OIDCProvider) Name() string { return p.name }

// AuthorizeURL builds the upstream authorization URL with state and nonce.
func (p *OIDCProvider) AuthorizeURL(state, nonce, redirectURI string) string {
	cfg := *p.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, oidc.Nonce(nonce))
}

type oidcClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Username      string `json:"preferred_username"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// Exchange trades the code for tokens and verifies the id token signature
// before trusting any claim in it.
func (p *OIDCProvider) Exchange(ctx context.Context, code, redirectURI string) (*Subject, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		cfg := *p.config
		cfg.RedirectURL = redirectURI
		upstream, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "exchange code")
		}

		rawIDToken, ok := upstream.Extra("id_token").(string)
		if !ok {
			return nil, errors.New("token response missing id_token")
		}
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "verify id token")
		}

		var claims oidcClaims
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "decode claims")
		}
		return &Subject{
			ProviderID:    idToken.Subject,
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
			Username:      claims.Username,
			Name:          claims.Name,
			Picture:       claims.Picture,
			Locale:        claims.Locale,
		}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange]")
	}
	return result.(*Subject), nil
}
