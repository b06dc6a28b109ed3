package oauthmodel

import "strings"

// ResponseType represents the OAuth 2.0 response type requested at the
// authorization endpoint. Only the authorization code flow is supported.
type ResponseType string

const (
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE challenge method.
type CodeMethodType string

const (
	// CodeMethodS256 hashes the verifier: challenge = BASE64URL(SHA256(verifier)).
	CodeMethodS256 CodeMethodType = "S256"

	// CodeMethodPlain sends the verifier as the challenge unchanged. Kept for
	// legacy clients; S256 is strongly preferred.
	CodeMethodPlain CodeMethodType = "plain"
)

// Valid reports whether the method is one the server understands. An empty
// method is treated as plain per RFC 7636 §4.3.
func (m CodeMethodType) Valid() bool {
	switch m {
	case CodeMethodS256, CodeMethodPlain, "":
		return true
	}
	return false
}

// GrantType represents the OAuth 2.0 grant presented at the token endpoint.
type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
	RefreshTokenGrant      GrantType = "refresh_token"
)

// PromptType carries the OIDC prompt parameter. Only "consent" changes
// behaviour here: it forces the consent screen even when a remembered grant
// already covers the requested scopes.
type PromptType string

const (
	PromptConsent PromptType = "consent"
)

// AuthorizeParameters holds the query parameters of an authorization request
// as received at /oauth/authorize/prepare.
type AuthorizeParameters struct {
	ClientID            string
	ResponseType        ResponseType
	RedirectURI         string
	Scope               string // space-separated, normalized downstream
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod CodeMethodType
	Prompt              PromptType
}

// TokenRequest holds the form parameters of a token endpoint request.
// ClientSecret may arrive via HTTP Basic auth instead of the body; the
// transport layer folds both into this struct before the service sees it.
type TokenRequest struct {
	GrantType    GrantType
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// SplitScope splits a space-separated scope string, dropping empty entries.
func SplitScope(scope string) []string {
	parts := strings.Fields(scope)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// JoinScope renders a scope list back to its space-separated wire form.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSet turns a scope list into a membership set.
func ScopeSet(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}
