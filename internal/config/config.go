// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds every tunable of the identity service. Values come from the
// environment with sensible development defaults; only RefreshTokenSalt has
// no default because issuing tokens without a private salt would be unsafe.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"identity"`
	Env     string `env:"ENV" envDefault:"development"`
	Port    int    `env:"PORT" envDefault:"8080"`

	// Issuer is the value of the iss claim and the base of the discovery
	// document. Must be the public URL clients see.
	Issuer string `env:"ISSUER" envDefault:"http://localhost:8080"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"identity.db"`

	// RedisAddr switches pending authorization requests from the in-process
	// store to Redis when set, which is required for multi-node deployments.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// SigningKeyPaths lists PEM files of RSA signing keys, oldest first.
	// When empty a throwaway development key is generated at startup.
	SigningKeyPaths []string `env:"SIGNING_KEY_PATHS" envSeparator:","`
	ActiveKID       string   `env:"ACTIVE_KID"`

	RefreshTokenSalt string `env:"REFRESH_TOKEN_SALT"`

	// Upstream identity providers. A provider is registered when its client
	// id is set; the generic OIDC provider additionally needs an issuer URL
	// for discovery.
	GitHubClientID      string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret  string `env:"GITHUB_CLIENT_SECRET"`
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
	OIDCProviderName    string `env:"OIDC_PROVIDER_NAME" envDefault:"oidc"`
	OIDCIssuerURL       string `env:"OIDC_ISSUER_URL"`
	OIDCClientID        string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret    string `env:"OIDC_CLIENT_SECRET"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	IDTokenTTL      time.Duration `env:"ID_TOKEN_TTL" envDefault:"10m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[Load] parse environment")
	}
	if cfg.RefreshTokenSalt == "" {
		return nil, errors.New("[Load] REFRESH_TOKEN_SALT is required")
	}
	return cfg, nil
}

// Production reports whether the service runs with production settings.
func (c *Config) Production() bool {
	return c.Env == "production"
}
