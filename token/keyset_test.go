package token_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/token"
)

func generateKey(t *testing.T, kid string, active bool) *token.SigningKey {
	t.Helper()
	key, err := token.GenerateSigningKey(kid, 2048, active)
	require.NoError(t, err)
	return key
}

func TestKeySet_SignAndVerify(t *testing.T) {
	keys, err := token.NewKeySet(generateKey(t, "key-1", true))
	require.NoError(t, err)

	signed, err := keys.Sign(jwt.MapClaims{"sub": "user-1", "jti": "abc"})
	require.NoError(t, err)

	claims, err := keys.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "abc", claims["jti"])
}

func TestKeySet_Rotation(t *testing.T) {
	oldKey := generateKey(t, "key-old", true)
	keys, err := token.NewKeySet(oldKey)
	require.NoError(t, err)

	oldToken, err := keys.Sign(jwt.MapClaims{"sub": "user-1"})
	require.NoError(t, err)

	// Rotate: retired key stays configured, new key becomes active.
	retired := generateKey(t, "key-old", false)
	retired.PrivateKey = oldKey.PrivateKey
	retired.PublicKey = oldKey.PublicKey
	newKey := generateKey(t, "key-new", true)
	require.NoError(t, keys.Reload(retired, newKey))
	require.Equal(t, "key-new", keys.ActiveKID())

	t.Run("tokens signed before rotation still verify", func(t *testing.T) {
		claims, err := keys.Verify(oldToken)
		require.NoError(t, err)
		require.Equal(t, "user-1", claims["sub"])
	})

	t.Run("new tokens carry the new kid", func(t *testing.T) {
		newToken, err := keys.Sign(jwt.MapClaims{"sub": "user-2"})
		require.NoError(t, err)
		claims, err := keys.Verify(newToken)
		require.NoError(t, err)
		require.Equal(t, "user-2", claims["sub"])
	})

	t.Run("jwks publishes both keys", func(t *testing.T) {
		set := keys.JWKS()
		require.Len(t, set.Keys, 2)
		kids := []string{set.Keys[0].Kid, set.Keys[1].Kid}
		require.ElementsMatch(t, []string{"key-old", "key-new"}, kids)
	})

	t.Run("dropping the retired key invalidates its tokens", func(t *testing.T) {
		require.NoError(t, keys.Reload(newKey))
		_, err := keys.Verify(oldToken)
		require.Error(t, err)
		oauthErr, ok := oauthmodel.AsError(err)
		require.True(t, ok)
		require.Equal(t, "UNKNOWN_KEY", oauthErr.Code)
	})
}

func TestKeySet_Validation(t *testing.T) {
	t.Run("at least one key required", func(t *testing.T) {
		_, err := token.NewKeySet()
		require.Error(t, err)
	})

	t.Run("duplicate kids rejected", func(t *testing.T) {
		_, err := token.NewKeySet(generateKey(t, "key-1", true), generateKey(t, "key-1", false))
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate kid")
	})

	t.Run("multiple active keys rejected", func(t *testing.T) {
		_, err := token.NewKeySet(generateKey(t, "key-1", true), generateKey(t, "key-2", true))
		require.Error(t, err)
		require.Contains(t, err.Error(), "multiple active keys")
	})

	t.Run("first key signs when none flagged active", func(t *testing.T) {
		keys, err := token.NewKeySet(generateKey(t, "key-1", false), generateKey(t, "key-2", false))
		require.NoError(t, err)
		require.Equal(t, "key-1", keys.ActiveKID())
	})
}

func TestKeySet_Verify_Garbage(t *testing.T) {
	keys, err := token.NewKeySet(generateKey(t, "key-1", true))
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		_, err := keys.Verify("not-a-jwt")
		require.Error(t, err)
		oauthErr, ok := oauthmodel.AsError(err)
		require.True(t, ok)
		require.Equal(t, "INVALID_TOKEN", oauthErr.Code)
	})

	t.Run("token signed by a foreign key", func(t *testing.T) {
		foreign, err := token.NewKeySet(generateKey(t, "key-1", true))
		require.NoError(t, err)
		signed, err := foreign.Sign(jwt.MapClaims{"sub": "intruder"})
		require.NoError(t, err)

		_, err = keys.Verify(signed)
		require.Error(t, err)
	})
}

func TestSigningKey_PEMRoundTrip(t *testing.T) {
	key := generateKey(t, "key-1", true)
	pemData := key.ExportPrivateKeyPEM()

	loaded, err := token.LoadSigningKeyPEM("key-1", []byte(pemData), true)
	require.NoError(t, err)
	require.Equal(t, key.PrivateKey.D, loaded.PrivateKey.D)
}
