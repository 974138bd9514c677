// Package ledger holds the temporal balance engine. Every mutation keeps the
// snapshot chain consistent: inserting a transaction at any past date patches
// the balance of every later snapshot, and reversal restores the timeline to
// one in which the transaction never happened.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/store"
)

// Engine applies and reverses transactions against the snapshot store.
// Stores are injected at construction; the engine holds no cross-user state
// beyond its lock table.
type Engine struct {
	snaps         store.SnapshotStore
	txns          store.TransactionStore
	locks         *lockTable
	cascadeDelete bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCascadeDelete controls whether deleting an account also reverses
// transfers that reference it from another account's timeline. Default on;
// turning it off leaves the other side's balances untouched.
func WithCascadeDelete(enabled bool) Option {
	return func(e *Engine) { e.cascadeDelete = enabled }
}

func New(snaps store.SnapshotStore, txns store.TransactionStore, opts ...Option) *Engine {
	e := &Engine{
		snaps:         snaps,
		txns:          txns,
		locks:         newLockTable(),
		cascadeDelete: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// atomically runs fn under a store-level transaction when the backend
// supports one. Otherwise fn runs as-is and relies on write ordering:
// later-snapshot patches first, the base snapshot last.
func (e *Engine) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if tr, ok := e.snaps.(store.TxRunner); ok {
		return tr.RunTx(ctx, fn)
	}
	return fn(ctx)
}

func (e *Engine) lockKeys(ns string, accounts []string) []string {
	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, ns+"/"+a)
	}
	return keys
}

// Apply records a transaction and updates the affected timelines. For income
// and expense it writes one tagged snapshot at the transaction date and
// shifts every later snapshot by the signed amount. A transfer is two such
// half-applications sharing the transaction id; an External side is skipped.
func (e *Engine) Apply(ctx context.Context, ns string, txn core.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}

	accounts := txn.Accounts()
	release := e.locks.acquire(e.lockKeys(ns, accounts)...)
	defer release()

	err := e.atomically(ctx, func(ctx context.Context) error {
		if err := e.txns.Insert(ctx, ns, txn); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		for _, account := range accounts {
			delta := txn.SignedAmount(account)
			if err := e.applyDelta(ctx, ns, account, txn.Date, txn.ID, delta); err != nil {
				return fmt.Errorf("apply to %s: %w", account, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "transaction applied",
		log.FieldComponent, log.ComponentLedger,
		log.FieldNamespace, ns,
		log.FieldTxnID, txn.ID,
		log.FieldKind, string(txn.Detail.Kind()),
		log.FieldAmount, txn.Amount.String(),
		"accounts", accounts)
	return nil
}

// applyDelta inserts the tagged snapshot for one account and propagates the
// delta to every later snapshot. The base balance is the latest snapshot
// strictly before the transaction date, zero when the timeline starts here.
func (e *Engine) applyDelta(ctx context.Context, ns, account string, at time.Time, txnID string, delta decimal.Decimal) error {
	base, err := e.snaps.LatestBefore(ctx, ns, account, at)
	if err != nil {
		return fmt.Errorf("find base snapshot: %w", err)
	}
	baseBalance := decimal.Zero
	if base != nil {
		baseBalance = base.Balance
	}

	// Patch the future first so a mid-flight failure without a store
	// transaction never leaves a tagged snapshot whose successors were
	// not shifted.
	if err := e.snaps.ShiftAfter(ctx, ns, account, at, delta); err != nil {
		return fmt.Errorf("shift later snapshots: %w", err)
	}

	snap := core.Snapshot{
		Account: account,
		At:      at,
		Balance: baseBalance.Add(delta),
		TxnID:   txnID,
	}
	if err := e.snaps.Put(ctx, ns, snap); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Reverse removes a transaction and exactly undoes its effect: each tagged
// snapshot is deleted and every snapshot after it shifted by the inverse
// delta. Reversing an unknown or already-reversed id reports ErrNotFound.
// The removed transaction is returned for event publication.
func (e *Engine) Reverse(ctx context.Context, ns, txnID string) (*core.Transaction, error) {
	txn, err := e.txns.GetByID(ctx, ns, txnID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction %s", core.ErrNotFound, txnID)
	}

	release := e.locks.acquire(e.lockKeys(ns, txn.Accounts())...)
	defer release()

	err = e.atomically(ctx, func(ctx context.Context) error {
		tagged, err := e.snaps.ByTag(ctx, ns, txnID)
		if err != nil {
			return fmt.Errorf("find tagged snapshots: %w", err)
		}
		for _, snap := range tagged {
			inverse := txn.SignedAmount(snap.Account).Neg()
			if err := e.snaps.ShiftAfter(ctx, ns, snap.Account, snap.At, inverse); err != nil {
				return fmt.Errorf("unshift %s: %w", snap.Account, err)
			}
		}
		if err := e.snaps.DeleteByTag(ctx, ns, txnID); err != nil {
			return fmt.Errorf("delete tagged snapshots: %w", err)
		}
		if err := e.txns.DeleteByID(ctx, ns, txnID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "transaction reversed",
		log.FieldComponent, log.ComponentLedger,
		log.FieldNamespace, ns,
		log.FieldTxnID, txnID,
		log.FieldKind, string(txn.Detail.Kind()))
	return txn, nil
}

// DeclareBaseline creates an account by writing its first manually declared
// balance, or restates the balance of an existing account at a later date.
// Creating an account that already exists is a conflict, as is the reserved
// External name.
func (e *Engine) DeclareBaseline(ctx context.Context, ns, account string, balance decimal.Decimal, at time.Time) error {
	if account == "" {
		return fmt.Errorf("%w: missing account name", core.ErrInvalidInput)
	}
	if account == core.ExternalAccount {
		return fmt.Errorf("%w: %q is reserved", core.ErrConflict, core.ExternalAccount)
	}

	release := e.locks.acquire(e.lockKeys(ns, []string{account})...)
	defer release()

	existing, err := e.snaps.Latest(ctx, ns, account)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: account %q already exists", core.ErrConflict, account)
	}

	snap := core.Snapshot{Account: account, At: at, Balance: balance}
	if err := e.snaps.Put(ctx, ns, snap); err != nil {
		return fmt.Errorf("put baseline: %w", err)
	}
	slog.InfoContext(ctx, "account created",
		log.FieldComponent, log.ComponentLedger,
		log.FieldNamespace, ns,
		log.FieldAccount, account)
	return nil
}

// Rename relabels an account and/or declares a new baseline balance. The new
// baseline must not be dated before the latest snapshot. A new name colliding
// with an existing active account is a conflict, and so is an edit that
// changes nothing.
func (e *Engine) Rename(ctx context.Context, ns, oldName, newName string, balance decimal.Decimal, at time.Time) error {
	if newName == "" {
		return fmt.Errorf("%w: missing account name", core.ErrInvalidInput)
	}
	if newName == core.ExternalAccount {
		return fmt.Errorf("%w: %q is reserved", core.ErrConflict, core.ExternalAccount)
	}

	release := e.locks.acquire(e.lockKeys(ns, []string{oldName, newName})...)
	defer release()

	latest, err := e.snaps.Latest(ctx, ns, oldName)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if latest == nil {
		return fmt.Errorf("%w: account %q", core.ErrNotFound, oldName)
	}

	renamed := newName != oldName
	if renamed {
		taken, err := e.snaps.Latest(ctx, ns, newName)
		if err != nil {
			return fmt.Errorf("check new name: %w", err)
		}
		if taken != nil {
			return fmt.Errorf("%w: account %q already exists", core.ErrConflict, newName)
		}
	}
	restated := !balance.Equal(latest.Balance)
	if !renamed && !restated {
		return fmt.Errorf("%w: nothing changed", core.ErrConflict)
	}
	// A restate lands at the end of the timeline; mid-chain it would break
	// the chain link of every later tagged snapshot.
	if restated && at.Before(latest.At) {
		return fmt.Errorf("%w: baseline date %s predates the latest snapshot at %s",
			core.ErrInvalidInput, at.Format(time.RFC3339), latest.At.Format(time.RFC3339))
	}

	err = e.atomically(ctx, func(ctx context.Context) error {
		if renamed {
			if err := e.snaps.Relabel(ctx, ns, oldName, newName); err != nil {
				return fmt.Errorf("relabel snapshots: %w", err)
			}
			if err := e.txns.RelabelAccount(ctx, ns, oldName, newName); err != nil {
				return fmt.Errorf("relabel transactions: %w", err)
			}
		}
		if restated {
			snap := core.Snapshot{Account: newName, At: at, Balance: balance}
			if err := e.snaps.Put(ctx, ns, snap); err != nil {
				return fmt.Errorf("put baseline: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "account edited",
		log.FieldComponent, log.ComponentLedger,
		log.FieldNamespace, ns,
		log.FieldAccount, newName,
		"renamed", renamed,
		"restated", restated)
	return nil
}

// DeleteAccount removes an account's snapshots and its primary transactions.
// With cascade enabled, every transfer touching the account is reversed first,
// so the other side's balances stay consistent and no transfer record outlives
// the account.
func (e *Engine) DeleteAccount(ctx context.Context, ns, account string) error {
	latest, err := e.snaps.Latest(ctx, ns, account)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if latest == nil {
		return fmt.Errorf("%w: account %q", core.ErrNotFound, account)
	}

	if e.cascadeDelete {
		touching, err := e.txns.Referencing(ctx, ns, account)
		if err != nil {
			return fmt.Errorf("list referencing transactions: %w", err)
		}
		for _, txn := range touching {
			// Income and expense fall to DeleteByPrimaryAccount below.
			// Transfers are reversed instead: an External-sided transfer
			// into this account has External as its primary account and
			// would otherwise survive as an orphaned record.
			if _, ok := txn.Detail.(core.Transfer); !ok {
				continue
			}
			if _, err := e.Reverse(ctx, ns, txn.ID); err != nil {
				return fmt.Errorf("cascade reverse %s: %w", txn.ID, err)
			}
		}
	}

	release := e.locks.acquire(e.lockKeys(ns, []string{account})...)
	defer release()

	err = e.atomically(ctx, func(ctx context.Context) error {
		if err := e.snaps.DeleteAccount(ctx, ns, account); err != nil {
			return fmt.Errorf("delete snapshots: %w", err)
		}
		if err := e.txns.DeleteByPrimaryAccount(ctx, ns, account); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "account deleted",
		log.FieldComponent, log.ComponentLedger,
		log.FieldNamespace, ns,
		log.FieldAccount, account,
		"cascade", e.cascadeDelete)
	return nil
}
