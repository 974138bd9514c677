package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("Starting tally-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	b, err := backend.New(cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	if b.Events == nil {
		logger.Info("AMQP disabled - running periodic verification only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	verifier := worker.NewVerifier(b.Snapshots, b.Transactions, cfg.Namespace, cfg.VerifyInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- verifier.Run(ctx, b.Events)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("Verifier stopped", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("tally-worker stopped")
}
