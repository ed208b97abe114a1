package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server"
	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/internal/server/guard"
	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/token"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return nil
	}

	handlers.Version = Version
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := server.OpenStore(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		}
	}()

	tokens, err := token.NewService(token.Config{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	authSvc := auth.NewService(logger, store, tokens, auth.WithDefaultRole(models.Role(cfg.DefaultRole)))

	if err := server.EnsureAdmin(ctx, logger, authSvc, store, cfg.Admin); err != nil {
		return err
	}

	srv := server.New(logger, server.Deps{
		Auth:   authSvc,
		Guard:  guard.New(logger, tokens, store),
		Health: store,
	}, server.Options{
		Addr:            cfg.Addr,
		RateLimit:       cfg.RateLimit,
		RateWindow:      cfg.RateWindow,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TrustProxy:      cfg.TrustProxy,
	})

	logger.InfoContext(ctx, "authgate server starting",
		slog.String("version", Version),
		slog.String("store", cfg.StoreDriver))

	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.InfoContext(context.WithoutCancel(ctx), "server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("AuthGate Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
