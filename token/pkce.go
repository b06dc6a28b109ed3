package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/questlog/identity/oauthmodel"
)

// VerifyCodeChallenge checks a PKCE verifier against the challenge stored
// with the authorization code. For S256 the verifier is hashed and
// base64url-encoded before comparison; for plain (or an absent method) the
// raw strings are compared. Both paths are constant time.
func VerifyCodeChallenge(storedChallenge, verifier string, method oauthmodel.CodeMethodType) bool {
	if storedChallenge == "" && verifier == "" { // no PKCE on this grant
		return true
	}

	switch method {
	case oauthmodel.CodeMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(derived), []byte(storedChallenge)) == 1
	case oauthmodel.CodeMethodPlain, "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(storedChallenge)) == 1
	}
	return false
}
