package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/oauthmodel"
)

// Token is the token endpoint: authorization_code exchange and
// refresh_token rotation. Client credentials may arrive via HTTP Basic or
// the form body.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Message: "malformed form body"})
			return
		}

		creds := clients.CredentialsFromRequest(r)
		req := oauthmodel.TokenRequest{
			GrantType:    oauthmodel.GrantType(r.FormValue("grant_type")),
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
			CodeVerifier: r.FormValue("code_verifier"),
			RefreshToken: r.FormValue("refresh_token"),
		}

		response, err := s.tokens.Token(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		// Token responses must never be cached.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		s.writeJSON(w, http.StatusOK, response)
	}
}

// Userinfo returns live claims for the bearer token, scope-filtered the same
// way the id token was.
func (s *Server) Userinfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := bearerToken(r)
		if rawToken == "" {
			s.writeJSON(w, http.StatusUnauthorized, errorBody{Code: "INVALID_TOKEN", Message: "bearer token required"})
			return
		}

		claims, err := s.tokens.Userinfo(r.Context(), rawToken)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, claims)
	}
}

type revokeRequest struct {
	Token string `json:"token"`
}

// Revoke invalidates the presented token. Unknown tokens still return 200
// per revocation semantics, so callers cannot enumerate valid values.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenValue string
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body revokeRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Message: "malformed request body"})
				return
			}
			tokenValue = body.Token
		} else {
			if err := r.ParseForm(); err != nil {
				s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Message: "malformed form body"})
				return
			}
			tokenValue = r.FormValue("token")
		}

		if err := s.tokens.Revoke(r.Context(), tokenValue); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
	}
}

// JWKS publishes the public keys of every configured signing key, so tokens
// signed before a rotation stay verifiable.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.tokens.JWKS())
	}
}

// WellKnownOpenIDConfig serves the OIDC discovery document.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := strings.TrimSuffix(s.issuer, "/")
		s.writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + RouteAuthorizePrepare,
			"token_endpoint":                        issuer + RouteToken,
			"userinfo_endpoint":                     issuer + RouteUserinfo,
			"revocation_endpoint":                   issuer + RouteRevoke,
			"jwks_uri":                              issuer + RouteWellKnownJWKS,
			"response_types_supported":              []string{"code"},
			"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"scopes_supported":                      []string{"openid", "profile", "email", "phone", "offline_access"},
			"code_challenge_methods_supported":      []string{"plain", "S256"},
			"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
			"claims_supported": []string{
				"sub", "name", "given_name", "family_name", "picture", "locale",
				"email", "email_verified", "phone_number", "phone_number_verified",
			},
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
