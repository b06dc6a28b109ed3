package token_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/token"
)

func s256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func TestVerifyCodeChallenge(t *testing.T) {
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	t.Run("S256 match", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(s256Challenge(verifier), verifier, oauthmodel.CodeMethodS256)
		require.True(t, ok)
	})

	t.Run("S256 mismatch", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(s256Challenge(verifier), "wrong-verifier", oauthmodel.CodeMethodS256)
		require.False(t, ok)
	})

	t.Run("plain match", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(verifier, verifier, oauthmodel.CodeMethodPlain)
		require.True(t, ok)
	})

	t.Run("absent method defaults to plain", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(verifier, verifier, "")
		require.True(t, ok)
	})

	t.Run("plain mismatch", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(verifier, "other", oauthmodel.CodeMethodPlain)
		require.False(t, ok)
	})

	t.Run("no PKCE on the grant", func(t *testing.T) {
		ok := token.VerifyCodeChallenge("", "", oauthmodel.CodeMethodS256)
		require.True(t, ok)
	})

	t.Run("challenge stored but verifier missing", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(s256Challenge(verifier), "", oauthmodel.CodeMethodS256)
		require.False(t, ok)
	})

	t.Run("verifier sent but no challenge stored", func(t *testing.T) {
		ok := token.VerifyCodeChallenge("", verifier, oauthmodel.CodeMethodS256)
		require.False(t, ok)
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		ok := token.VerifyCodeChallenge(verifier, verifier, "S512")
		require.False(t, ok)
	})
}
