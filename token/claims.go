package token

import (
	"github.com/questlog/identity/users"
)

// Scopes with a fixed claims mapping.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopePhone         = "phone"
	ScopeOfflineAccess = "offline_access"
)

// AssembleClaims maps granted scopes to user claims. It reads the user
// record as passed in, so callers that want live claims (userinfo) fetch the
// user first; claims are never cached from issuance time.
//
// master_flags is a non-standard object always attached for downstream
// authorization decisions.
func AssembleClaims(user *users.User, scopes []string) map[string]any {
	claims := map[string]any{
		"sub": user.Subject(),
	}

	for _, scope := range scopes {
		switch scope {
		case ScopeProfile:
			claims["name"] = user.Name()
			claims["given_name"] = user.FirstName
			claims["family_name"] = user.LastName
			claims["picture"] = user.Picture
			claims["locale"] = user.Locale
		case ScopeEmail:
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		case ScopePhone:
			claims["phone_number"] = user.PhoneNumber
			claims["phone_number_verified"] = user.PhoneVerified
		}
	}

	claims["master_flags"] = map[string]any{
		"suspended":    user.Suspended(),
		"banned":       user.Banned(),
		"system_admin": user.SystemAdmin,
		"status":       string(user.Status),
	}

	return claims
}
