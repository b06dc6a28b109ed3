package clients

import (
	"github.com/questlog/identity/oauthmodel"
)

// Client is a registered OAuth2/OIDC relying party. Records are immutable at
// runtime except through administrative updates; the token issuance core only
// ever reads them.
type Client struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	SecretHash    string   `json:"-"` // bcrypt hash, empty for public clients
	RedirectURIs  []string `json:"redirect_uris"`
	Scopes        []string `json:"scopes"` // allowed scopes for this client
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Public        bool     `json:"public"`      // no shared secret; PKCE is mandatory
	FirstParty    bool     `json:"first_party"` // operated by the platform itself
}

// IsPublic reports whether the client cannot hold a secret. Public clients
// authenticate through PKCE instead of a client secret.
func (c *Client) IsPublic() bool {
	return c.Public
}

// AllowsRedirect checks the redirect URI against the registered allow-list.
// Comparison is exact; no prefix or wildcard matching.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *Client) AllowsGrant(grant oauthmodel.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == string(grant) {
			return true
		}
	}
	return false
}

// AllowsResponseType reports whether the client may use the given response
// type. A client with no declared response types accepts any.
func (c *Client) AllowsResponseType(rt oauthmodel.ResponseType) bool {
	if len(c.ResponseTypes) == 0 {
		return true
	}
	for _, r := range c.ResponseTypes {
		if r == string(rt) {
			return true
		}
	}
	return false
}

// HasScope checks whether a single scope is on the client's allow-list.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
