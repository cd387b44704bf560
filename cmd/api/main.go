package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whodunit/platform/internal/app"
	"github.com/whodunit/platform/internal/auth"
	"github.com/whodunit/platform/internal/infra"
)

const identityExpiry = 30 * 24 * time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Apply migrations
	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Identity tokens
	identity := auth.NewManager(cfg.JWTSecret, identityExpiry)

	// Push delivery: one feed consumer per process, fanned out by the hub.
	hub := infra.NewHub(logger)
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.ChangeFeedTopic, "", cfg.KafkaEnabled, logger)
	defer consumer.Close()
	go infra.FeedPump(ctx, consumer, hub, logger)

	// Router
	r := app.NewRouter(app.RouterDeps{
		Pool:               pool,
		Identity:           identity,
		Hub:                hub,
		Logger:             logger,
		RandomOrgAPIKey:    cfg.RandomOrgAPIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Start server. WriteTimeout stays zero because the feed endpoint holds
	// its response open indefinitely.
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
