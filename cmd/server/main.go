/*
main.go - Application entry point

PURPOSE:
  Starts the EcoBack reward engine HTTP server. Handles configuration,
  dependency injection, optional seeding and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags, load config (file < ECOBACK_* env)
  2. Build the zap logger
  3. Open the store (sqlite file or in-process memory)
  4. Apply the seed fixture when seed.file is set
  5. Wire services, handler and router
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  path to a YAML config file (default: ./config.yaml if present)
  -seed    seed fixture, overrides seed.file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server -config=config.yaml
  ECOBACK_DATABASE_DRIVER=memory ./server -seed=seed/testdata/demo.yaml
  ECOBACK_SERVER_PORT=3000 ECOBACK_AUTH_JWT_SECRET=... ./server

SEE ALSO:
  - config/config.go: settings and defaults
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecoback/reward-engine/api"
	"github.com/ecoback/reward-engine/auth"
	"github.com/ecoback/reward-engine/collection"
	"github.com/ecoback/reward-engine/config"
	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/core/store"
	"github.com/ecoback/reward-engine/gamification"
	"github.com/ecoback/reward-engine/logger"
	"github.com/ecoback/reward-engine/qrcode"
	"github.com/ecoback/reward-engine/recycle"
	"github.com/ecoback/reward-engine/seed"
	"github.com/ecoback/reward-engine/store/sqlite"
	"github.com/ecoback/reward-engine/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	seedPath := flag.String("seed", "", "seed fixture (overrides seed.file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *seedPath != "" {
		cfg.Seed.File = *seedPath
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		// os.Exit skips defers, so flush by hand
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()
	clock := core.SystemClock{}

	st, closer, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closer.Close()
	log.Info("store opened", zap.String("driver", cfg.Database.Driver), zap.String("path", cfg.Database.Path))

	if cfg.Seed.File != "" {
		f, err := seed.Load(cfg.Seed.File)
		if err != nil {
			return err
		}
		rep, err := seed.Apply(ctx, st, f, clock.Now(), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("seed applied",
			zap.String("file", cfg.Seed.File),
			zap.Int("users", rep.Users),
			zap.Int("products", rep.Products),
			zap.Int("collection_points", rep.Points),
			zap.Int("skipped", rep.Skipped))
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock)
	if err != nil {
		return err
	}
	h := api.NewHandler(api.Services{
		Auth:         auth.NewService(st, clock, tokens, bcrypt.DefaultCost, log),
		QRCodes:      qrcode.NewService(st, clock, log),
		Recycle:      recycle.NewService(st, clock, log),
		Wallet:       wallet.NewService(st, clock, log),
		Gamification: gamification.NewService(st, clock, log),
		Collection:   collection.NewService(st, clock, log),
	}, clock, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(h, api.RouterOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config.DatabaseConfig) (core.Store, io.Closer, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nopCloser{}, nil
	case "sqlite":
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
