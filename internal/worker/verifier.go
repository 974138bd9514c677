// Package worker runs the background consistency verifier. It re-derives
// every account balance from the transaction log and reports snapshots whose
// chain link does not add up, both on mutation events and on a timer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/store"
)

// Violation is one snapshot whose balance disagrees with the previous
// snapshot plus its transaction's signed amount.
type Violation struct {
	Account string
	At      time.Time
	TxnID   string
	Want    decimal.Decimal
	Got     decimal.Decimal
}

func (v Violation) String() string {
	return fmt.Sprintf("%s@%s txn=%s want=%s got=%s",
		v.Account, v.At.Format(time.RFC3339), v.TxnID, v.Want, v.Got)
}

// Verifier checks snapshot chains against the transaction log. It only
// reads; repairing a broken chain is a manual operation.
type Verifier struct {
	snaps     store.SnapshotStore
	txns      store.TransactionStore
	namespace string
	interval  time.Duration
}

func NewVerifier(snaps store.SnapshotStore, txns store.TransactionStore, namespace string, interval time.Duration) *Verifier {
	return &Verifier{
		snaps:     snaps,
		txns:      txns,
		namespace: namespace,
		interval:  interval,
	}
}

// VerifyAccount walks one account's timeline oldest-first. Each tagged
// snapshot must equal the previous balance plus the signed amount of its
// transaction. A baseline restates the balance and starts a fresh link.
func (v *Verifier) VerifyAccount(ctx context.Context, ns, account string) ([]Violation, error) {
	history, err := v.snaps.History(ctx, ns, account)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", account, err)
	}

	var violations []Violation
	prev := decimal.Zero // a timeline starts from zero
	for _, snap := range history {
		if snap.Baseline() {
			prev = snap.Balance
			continue
		}

		txn, err := v.txns.GetByID(ctx, ns, snap.TxnID)
		if err != nil {
			return nil, fmt.Errorf("load transaction %s: %w", snap.TxnID, err)
		}
		if txn == nil {
			// Orphaned tag: the snapshot outlived its transaction.
			violations = append(violations, Violation{
				Account: account, At: snap.At, TxnID: snap.TxnID,
				Want: prev, Got: snap.Balance,
			})
			prev = snap.Balance
			continue
		}

		want := prev.Add(txn.SignedAmount(account))
		if !want.Equal(snap.Balance) {
			violations = append(violations, Violation{
				Account: account, At: snap.At, TxnID: snap.TxnID,
				Want: want, Got: snap.Balance,
			})
		}
		prev = snap.Balance
	}
	return violations, nil
}

// VerifyNamespace checks every account in the namespace.
func (v *Verifier) VerifyNamespace(ctx context.Context, ns string) ([]Violation, error) {
	accounts, err := v.snaps.Accounts(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var violations []Violation
	for _, account := range accounts {
		found, err := v.VerifyAccount(ctx, ns, account)
		if err != nil {
			return nil, err
		}
		violations = append(violations, found...)
	}
	return violations, nil
}

// HandleEvent verifies the accounts a mutation event names. Events for
// deleted accounts verify trivially against an empty timeline.
func (v *Verifier) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	for _, account := range event.Accounts {
		violations, err := v.VerifyAccount(ctx, event.Namespace, account)
		if err != nil {
			return err
		}
		v.report(ctx, event.Namespace, violations)
	}
	slog.InfoContext(ctx, "verified event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldKind, event.Kind,
		log.FieldNamespace, event.Namespace,
		"accounts", event.Accounts)
	return nil
}

// Run consumes mutation events and sweeps the whole namespace on a timer.
// With a nil event client only the periodic sweep runs. Run returns when the
// context is cancelled.
func (v *Verifier) Run(ctx context.Context, events *amqp.Client) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(v.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				violations, err := v.VerifyNamespace(ctx, v.namespace)
				if err != nil {
					slog.ErrorContext(ctx, "periodic verification failed",
						log.FieldComponent, log.ComponentWorker,
						log.FieldError, err)
					continue
				}
				v.report(ctx, v.namespace, violations)
				slog.InfoContext(ctx, "periodic verification complete",
					log.FieldComponent, log.ComponentWorker,
					log.FieldNamespace, v.namespace,
					"violations", len(violations))
			}
		}
	})

	if events != nil {
		g.Go(func() error {
			return events.ConsumeLedgerEvents(ctx, v.HandleEvent)
		})
	}

	return g.Wait()
}

func (v *Verifier) report(ctx context.Context, ns string, violations []Violation) {
	for _, violation := range violations {
		slog.ErrorContext(ctx, "balance chain violation",
			log.FieldComponent, log.ComponentWorker,
			log.FieldNamespace, ns,
			log.FieldAccount, violation.Account,
			"at", violation.At,
			log.FieldTxnID, violation.TxnID,
			"want", violation.Want.String(),
			"got", violation.Got.String())
	}
}
