// Package main is the entrypoint for the Tuttiud setup gateway server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/api"
	"github.com/tuttiud/platform/internal/auth"
	"github.com/tuttiud/platform/internal/config"
	"github.com/tuttiud/platform/internal/crypto"
	"github.com/tuttiud/platform/internal/db"
	"github.com/tuttiud/platform/internal/metrics"
	"github.com/tuttiud/platform/internal/setup"
	"github.com/tuttiud/platform/internal/tenant"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("starting tuttiud setup gateway")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to control store")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to run control store migrations")
		return 1
	}

	cipher, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error().Err(err).Msg("invalid encryption key material")
		return 1
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register metrics")
		return 1
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	guard := auth.NewGuard(database, verifier, logger)
	resolver := tenant.NewResolver(guard, database, cipher, m, logger)

	newClient := func(storeURL, credential string) tenant.API {
		return tenant.NewClient(storeURL, credential, m, logger)
	}
	svc := setup.NewService(guard, resolver, database, cipher, newClient, logger)

	router, err := api.NewRouter(api.Config{
		Environment:       cfg.Environment,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
	}, svc, resolver, database, registry, m, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return 1
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return 1
	}

	logger.Info().Msg("server stopped")
	return 0
}
