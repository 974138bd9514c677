// Package backend assembles the configured storage and messaging backends
// into one bundle the commands can wire services from.
package backend

import (
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/store"
	"tally/internal/store/memory"
	"tally/internal/store/sqlite"
)

// Backend bundles the concrete store implementations selected by
// configuration. Events is nil when no AMQP URL is configured.
type Backend struct {
	Snapshots    store.SnapshotStore
	Transactions store.TransactionStore
	Categories   store.CategoryStore
	Events       *amqp.Client

	cleanups []func() error
}

// New builds the backend bundle for the configured data backend and, when an
// AMQP URL is set, connects the event client.
func New(cfg *config.Config) (*Backend, error) {
	b := &Backend{}

	switch cfg.DataBackend {
	case "memory":
		s := memory.New()
		b.Snapshots, b.Transactions, b.Categories = s, s, s
		slog.Info("using in-memory backend")
	case "sqlite":
		repo, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		b.Snapshots, b.Transactions, b.Categories = repo, repo, repo
		b.cleanups = append(b.cleanups, repo.Close)
		slog.Info("using sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		}
		b.Events = client
		b.cleanups = append(b.cleanups, client.Close)
		slog.Info("connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	return b, nil
}

// Close releases backend resources in reverse construction order.
func (b *Backend) Close() error {
	var firstErr error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
