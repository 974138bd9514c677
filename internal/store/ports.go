// Package store declares the ports the ledger engine and reporter depend on.
// Backends (memory, sqlite) implement them; the engine never sees a concrete
// store type.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

type (
	// SnapshotStore is an ordered-by-time collection of balance snapshots
	// per account, partitioned by namespace. Lookups that miss return
	// (nil, nil), not an error; core.ErrStorage wraps genuine failures.
	SnapshotStore interface {
		// LatestBefore returns the newest snapshot strictly before at.
		LatestBefore(ctx context.Context, ns, account string, at time.Time) (*core.Snapshot, error)

		// RangeAfter returns snapshots strictly after at, ordered by time.
		RangeAfter(ctx context.Context, ns, account string, at time.Time) ([]core.Snapshot, error)

		// Put inserts one snapshot.
		Put(ctx context.Context, ns string, snap core.Snapshot) error

		// ShiftAfter adds delta to the balance of every snapshot of the
		// account strictly after at. This is the propagate step; backends
		// that support transactions run it atomically under RunTx.
		ShiftAfter(ctx context.Context, ns, account string, at time.Time, delta decimal.Decimal) error

		// ByTag returns the snapshots produced by a transaction, at most
		// one per account.
		ByTag(ctx context.Context, ns, txnID string) ([]core.Snapshot, error)

		// DeleteByTag removes every snapshot produced by a transaction.
		DeleteByTag(ctx context.Context, ns, txnID string) error

		// Latest returns the newest snapshot of the account, nil if the
		// account has none (i.e. does not exist).
		Latest(ctx context.Context, ns, account string) (*core.Snapshot, error)

		// History returns the full snapshot timeline of one account,
		// ordered by time.
		History(ctx context.Context, ns, account string) ([]core.Snapshot, error)

		// Accounts lists every account with at least one snapshot.
		Accounts(ctx context.Context, ns string) ([]string, error)

		// Relabel rewrites the account name on every snapshot.
		Relabel(ctx context.Context, ns, oldName, newName string) error

		// DeleteAccount removes every snapshot of the account.
		DeleteAccount(ctx context.Context, ns, account string) error
	}

	// TransactionStore persists immutable transaction records.
	TransactionStore interface {
		Insert(ctx context.Context, ns string, txn core.Transaction) error

		// GetByID returns (nil, nil) when the transaction does not exist.
		GetByID(ctx context.Context, ns, id string) (*core.Transaction, error)

		DeleteByID(ctx context.Context, ns, id string) error

		// Range returns transactions with start <= date <= end, newest
		// first.
		Range(ctx context.Context, ns string, start, end time.Time) ([]core.Transaction, error)

		// All returns every transaction in the namespace.
		All(ctx context.Context, ns string) ([]core.Transaction, error)

		// Referencing returns transactions that touch the account on any
		// side, including as transfer destination.
		Referencing(ctx context.Context, ns, account string) ([]core.Transaction, error)

		// RelabelAccount rewrites the account name wherever it appears,
		// transfer destinations included.
		RelabelAccount(ctx context.Context, ns, oldName, newName string) error

		// DeleteByPrimaryAccount removes transactions whose primary
		// account (income/expense account, transfer source) matches.
		DeleteByPrimaryAccount(ctx context.Context, ns, account string) error
	}

	// CategoryStore serves the per-namespace taxonomy.
	CategoryStore interface {
		// Taxonomy returns the category forest for one flow direction.
		Taxonomy(ctx context.Context, ns string, flow core.Flow) ([]core.Category, error)

		// Seed installs the default taxonomy for a namespace if it has
		// none yet.
		Seed(ctx context.Context, ns string) error
	}

	// TxRunner is an optional capability: backends that can execute fn as
	// one atomic unit expose it. The engine falls back to careful write
	// ordering when the backend does not.
	TxRunner interface {
		RunTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	// NamespaceResolver maps a caller identity to its ledger namespace.
	// Identity resolution itself (sessions, tokens) lives outside this
	// module.
	NamespaceResolver interface {
		Resolve(ctx context.Context, identity string) (string, error)
	}
)
