package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("refresh token salt is required", func(t *testing.T) {
		_, err := config.Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "REFRESH_TOKEN_SALT")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("REFRESH_TOKEN_SALT", "salt")

		cfg, err := config.Load()
		require.NoError(t, err)
		require.Equal(t, "identity", cfg.AppName)
		require.Equal(t, 8080, cfg.Port)
		require.Equal(t, "http://localhost:8080", cfg.Issuer)
		require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
		require.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
		require.False(t, cfg.Production())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("REFRESH_TOKEN_SALT", "salt")
		t.Setenv("ENV", "production")
		t.Setenv("PORT", "9000")
		t.Setenv("SIGNING_KEY_PATHS", "/keys/old.pem,/keys/new.pem")
		t.Setenv("ACTIVE_KID", "key-2")
		t.Setenv("ACCESS_TOKEN_TTL", "15m")

		cfg, err := config.Load()
		require.NoError(t, err)
		require.True(t, cfg.Production())
		require.Equal(t, 9000, cfg.Port)
		require.Equal(t, []string{"/keys/old.pem", "/keys/new.pem"}, cfg.SigningKeyPaths)
		require.Equal(t, "key-2", cfg.ActiveKID)
		require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	})
}
