package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a stored point-in-time balance for one account. Snapshots of an
// account are totally ordered by At; between two consecutive snapshots the
// later balance equals the earlier one plus the signed amount of the
// transaction that produced it.
//
// A snapshot with an empty TxnID is a baseline: a manually declared balance
// that starts (or restarts) the chain rather than deriving from it.
type Snapshot struct {
	Account string
	At      time.Time
	Balance decimal.Decimal
	TxnID   string
}

// Baseline reports whether the snapshot was declared manually rather than
// produced by a transaction.
func (s Snapshot) Baseline() bool { return s.TxnID == "" }

// Account is the latest known state of a tracked account, derived from its
// snapshot history. Accounts hold no balance field of their own.
type Account struct {
	Name       string
	Balance    decimal.Decimal
	LastUpdate time.Time
}
