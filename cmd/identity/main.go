package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/federation"
	"github.com/questlog/identity/internal/config"
	"github.com/questlog/identity/oidc"
	"github.com/questlog/identity/oidc/authrequest"
	"github.com/questlog/identity/server"
	"github.com/questlog/identity/storage/sqlite"
	"github.com/questlog/identity/token"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "identity").Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("service failed")
	}
	logger.Info().Msg("service stopped")
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "[run] load config")
	}
	displayAppname(cfg.AppName)

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return errors.Wrap(err, "[run] open database")
	}
	defer store.Close()

	keys, err := loadKeySet(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "[run] load signing keys")
	}

	requests := requestRepo(cfg, logger)

	providers, err := federationProviders(context.Background(), cfg)
	if err != nil {
		return errors.Wrap(err, "[run] build federation providers")
	}
	if names := providers.Names(); len(names) > 0 {
		logger.Info().Strs("providers", names).Msg("upstream identity providers registered")
	}

	authenticator, err := clients.NewAuthenticator(store.Clients())
	if err != nil {
		return errors.Wrap(err, "[run] build client authenticator")
	}

	flow, err := oidc.NewService(oidc.Repos{
		Clients:  store.Clients(),
		Users:    store.Users(),
		Requests: requests,
		Codes:    store.Codes(),
		Consents: store.Consents(),
	})
	if err != nil {
		return errors.Wrap(err, "[run] build authorization service")
	}

	tokens, err := token.New(authenticator, token.Repos{
		Users:    store.Users(),
		Codes:    store.Codes(),
		Consents: store.Consents(),
		Records:  store.Records(),
	}, keys, cfg.Issuer, cfg.RefreshTokenSalt,
		token.WithTokenExpiry(cfg.AccessTokenTTL, cfg.IDTokenTTL, cfg.RefreshTokenTTL))
	if err != nil {
		return errors.Wrap(err, "[run] build token manager")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.New(flow, tokens, cfg.Issuer, logger).Handler(),
	}

	go func() {
		logger.Info().Int("port", cfg.Port).Str("issuer", cfg.Issuer).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("listen and serve")
		}
	}()

	waitForStopSignal()
	return shutdown(srv, cfg.ShutdownTimeout)
}

// loadKeySet reads the configured PEM signing keys. Without any configured
// keys a throwaway development key is generated, so issued tokens do not
// survive restarts.
func loadKeySet(cfg *config.Config, logger zerolog.Logger) (*token.KeySet, error) {
	if len(cfg.SigningKeyPaths) == 0 {
		logger.Warn().Msg("no signing keys configured, generating ephemeral development key")
		key, err := token.GenerateSigningKey("dev-"+time.Now().UTC().Format("20060102"), 2048, true)
		if err != nil {
			return nil, errors.Wrap(err, "[loadKeySet] generate dev key")
		}
		return token.NewKeySet(key)
	}

	keys := make([]*token.SigningKey, 0, len(cfg.SigningKeyPaths))
	for i, path := range cfg.SigningKeyPaths {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "[loadKeySet] read %s", path)
		}
		kid := fmt.Sprintf("key-%d", i+1)
		active := (cfg.ActiveKID == "" && i == len(cfg.SigningKeyPaths)-1) || cfg.ActiveKID == kid
		key, err := token.LoadSigningKeyPEM(kid, pemData, active)
		if err != nil {
			return nil, errors.Wrapf(err, "[loadKeySet] parse %s", path)
		}
		keys = append(keys, key)
	}
	return token.NewKeySet(keys...)
}

// federationProviders registers every upstream identity provider with
// credentials in the environment. The generic OIDC provider runs discovery
// against its issuer, so a misconfigured issuer fails startup.
func federationProviders(ctx context.Context, cfg *config.Config) (*federation.Registry, error) {
	registry := federation.NewRegistry()
	if cfg.GitHubClientID != "" {
		registry.Register(federation.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret))
	}
	if cfg.DiscordClientID != "" {
		registry.Register(federation.NewDiscordProvider(cfg.DiscordClientID, cfg.DiscordClientSecret))
	}
	if cfg.OIDCClientID != "" {
		provider, err := federation.NewOIDCProvider(ctx, cfg.OIDCProviderName, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			return nil, errors.Wrapf(err, "[federationProviders] discover %s", cfg.OIDCIssuerURL)
		}
		registry.Register(provider)
	}
	return registry, nil
}

// requestRepo picks the pending-authorization store: Redis when configured,
// otherwise in-process memory (single node only).
func requestRepo(cfg *config.Config, logger zerolog.Logger) authrequest.Repo {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("authorization requests held in process memory")
		return authrequest.NewInMemoryRepo()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	logger.Info().Str("addr", cfg.RedisAddr).Msg("authorization requests held in redis")
	return authrequest.NewRedisRepo(client)
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Wrap(srv.Shutdown(ctx), "[shutdown] server.Shutdown")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
