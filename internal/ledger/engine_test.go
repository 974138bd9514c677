package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/store/memory"
)

const testNS = "user1"

func date(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	return New(s, s, opts...), s
}

func declare(t *testing.T, e *Engine, account, balance string, at time.Time) {
	t.Helper()
	if err := e.DeclareBaseline(context.Background(), testNS, account, dec(balance), at); err != nil {
		t.Fatalf("declare %s: %v", account, err)
	}
}

func apply(t *testing.T, e *Engine, id string, at time.Time, amount string, detail core.Detail) {
	t.Helper()
	err := e.Apply(context.Background(), testNS, core.Transaction{
		ID: id, Date: at, Amount: dec(amount), Detail: detail,
	})
	if err != nil {
		t.Fatalf("apply %s: %v", id, err)
	}
}

func balanceAt(t *testing.T, s *memory.Store, account string, at time.Time) string {
	t.Helper()
	history, err := s.History(context.Background(), testNS, account)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, snap := range history {
		if snap.At.Equal(at) {
			return snap.Balance.String()
		}
	}
	t.Fatalf("no snapshot of %s at %s", account, at)
	return ""
}

func latestBalance(t *testing.T, s *memory.Store, account string) string {
	t.Helper()
	snap, err := s.Latest(context.Background(), testNS, account)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap == nil {
		t.Fatalf("account %s has no snapshots", account)
	}
	return snap.Balance.String()
}

func TestApplySequential(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))

	apply(t, e, "t1", date(5), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})
	apply(t, e, "t2", date(10), "500", core.Income{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	if got := balanceAt(t, s, "Checking", date(5)); got != "800" {
		t.Fatalf("after expense: expected 800, got %s", got)
	}
	if got := latestBalance(t, s, "Checking"); got != "1300" {
		t.Fatalf("final: expected 1300, got %s", got)
	}
}

func TestApplyOutOfOrderPatchesLaterSnapshots(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	apply(t, e, "t1", date(10), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	// Insert between the baseline and the expense; the expense snapshot
	// must shift by the income amount.
	apply(t, e, "t2", date(5), "500", core.Income{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	if got := balanceAt(t, s, "Checking", date(5)); got != "1500" {
		t.Fatalf("income snapshot: expected 1500, got %s", got)
	}
	if got := balanceAt(t, s, "Checking", date(10)); got != "1300" {
		t.Fatalf("patched expense snapshot: expected 1300, got %s", got)
	}
}

func TestApplyBeforeBaseline(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(10))

	// The timeline before the baseline starts from zero; the baseline
	// itself is shifted like any later snapshot.
	apply(t, e, "t1", date(5), "300", core.Income{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	if got := balanceAt(t, s, "Checking", date(5)); got != "300" {
		t.Fatalf("early income: expected 300, got %s", got)
	}
	if got := balanceAt(t, s, "Checking", date(10)); got != "1300" {
		t.Fatalf("shifted baseline: expected 1300, got %s", got)
	}
}

func TestApplyTransferMovesBothSides(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	declare(t, e, "Savings", "500", date(1))

	apply(t, e, "t1", date(5), "250", core.Transfer{From: "Checking", To: "Savings"})

	if got := latestBalance(t, s, "Checking"); got != "750" {
		t.Fatalf("source: expected 750, got %s", got)
	}
	if got := latestBalance(t, s, "Savings"); got != "750" {
		t.Fatalf("destination: expected 750, got %s", got)
	}
}

func TestApplyExternalTransferTouchesOneSide(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))

	apply(t, e, "t1", date(5), "100", core.Transfer{From: core.ExternalAccount, To: "Checking"})

	if got := latestBalance(t, s, "Checking"); got != "1100" {
		t.Fatalf("expected 1100, got %s", got)
	}
	accounts, err := s.Accounts(context.Background(), testNS)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	for _, a := range accounts {
		if a == core.ExternalAccount {
			t.Fatalf("External must never get snapshots")
		}
	}
}

func TestApplyRejectsDoubleExternal(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Apply(context.Background(), testNS, core.Transaction{
		ID: "t1", Date: date(1), Amount: dec("10"),
		Detail: core.Transfer{From: core.ExternalAccount, To: core.ExternalAccount},
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReverseRestoresTimeline(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	apply(t, e, "t1", date(5), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})
	apply(t, e, "t2", date(10), "500", core.Income{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	txn, err := e.Reverse(context.Background(), testNS, "t1")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if txn.ID != "t1" {
		t.Fatalf("expected reversed t1, got %s", txn.ID)
	}

	history, _ := s.History(context.Background(), testNS, "Checking")
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots after reversal, got %d", len(history))
	}
	if got := latestBalance(t, s, "Checking"); got != "1500" {
		t.Fatalf("expected 1500 after reversal, got %s", got)
	}
	if stored, _ := s.GetByID(context.Background(), testNS, "t1"); stored != nil {
		t.Fatalf("reversed transaction still stored")
	}
}

func TestReverseTransfer(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	declare(t, e, "Savings", "500", date(1))
	apply(t, e, "t1", date(5), "250", core.Transfer{From: "Checking", To: "Savings"})

	if _, err := e.Reverse(context.Background(), testNS, "t1"); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if got := latestBalance(t, s, "Checking"); got != "1000" {
		t.Fatalf("source not restored: %s", got)
	}
	if got := latestBalance(t, s, "Savings"); got != "500" {
		t.Fatalf("destination not restored: %s", got)
	}
}

func TestReverseUnknownAndTwice(t *testing.T) {
	e, _ := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	apply(t, e, "t1", date(5), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	if _, err := e.Reverse(context.Background(), testNS, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown id: expected not found, got %v", err)
	}
	if _, err := e.Reverse(context.Background(), testNS, "t1"); err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	if _, err := e.Reverse(context.Background(), testNS, "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second reverse: expected not found, got %v", err)
	}
}

func TestDeclareBaseline(t *testing.T) {
	e, _ := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))

	if err := e.DeclareBaseline(context.Background(), testNS, "Checking", dec("1"), date(2)); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate account: expected conflict, got %v", err)
	}
	if err := e.DeclareBaseline(context.Background(), testNS, core.ExternalAccount, dec("1"), date(2)); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("reserved name: expected conflict, got %v", err)
	}
	if err := e.DeclareBaseline(context.Background(), testNS, "", dec("1"), date(2)); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("empty name: expected invalid input, got %v", err)
	}
}

func TestRename(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	apply(t, e, "t1", date(5), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	if err := e.Rename(context.Background(), testNS, "Checking", "Main", dec("800"), date(6)); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if got := latestBalance(t, s, "Main"); got != "800" {
		t.Fatalf("renamed account: expected 800, got %s", got)
	}
	if snap, _ := s.Latest(context.Background(), testNS, "Checking"); snap != nil {
		t.Fatalf("old name still has snapshots")
	}
	stored, _ := s.GetByID(context.Background(), testNS, "t1")
	if stored.Detail.(core.Expense).Account != "Main" {
		t.Fatalf("transaction not relabeled: %+v", stored.Detail)
	}
}

func TestRenameRestatesBalance(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))

	if err := e.Rename(context.Background(), testNS, "Checking", "Checking", dec("2000"), date(5)); err != nil {
		t.Fatalf("restate: %v", err)
	}
	if got := latestBalance(t, s, "Checking"); got != "2000" {
		t.Fatalf("expected restated 2000, got %s", got)
	}
	history, _ := s.History(context.Background(), testNS, "Checking")
	if len(history) != 2 || !history[1].Baseline() {
		t.Fatalf("expected a second baseline snapshot, got %+v", history)
	}
}

func TestRenameRejectsPastDatedRestate(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	apply(t, e, "t1", date(10), "200", core.Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 1})

	err := e.Rename(context.Background(), testNS, "Checking", "Checking", dec("5000"), date(5))
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("past-dated restate: expected invalid input, got %v", err)
	}
	if got := latestBalance(t, s, "Checking"); got != "800" {
		t.Fatalf("timeline changed by a rejected restate: %s", got)
	}
}

func TestRenameConflicts(t *testing.T) {
	e, _ := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	declare(t, e, "Savings", "500", date(1))

	ctx := context.Background()
	if err := e.Rename(ctx, testNS, "Checking", "Savings", dec("1000"), date(2)); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("name taken: expected conflict, got %v", err)
	}
	if err := e.Rename(ctx, testNS, "Checking", "Checking", dec("1000"), date(2)); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("nothing changed: expected conflict, got %v", err)
	}
	if err := e.Rename(ctx, testNS, "Missing", "Other", dec("1"), date(2)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing account: expected not found, got %v", err)
	}
}

func TestDeleteAccountCascadesTransfers(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Checking", "1000", date(1))
	declare(t, e, "Savings", "500", date(1))
	apply(t, e, "t1", date(5), "250", core.Transfer{From: "Checking", To: "Savings"})
	apply(t, e, "t2", date(6), "100", core.Expense{Account: "Savings", CategoryID: 1, SubcategoryID: 1})

	if err := e.DeleteAccount(context.Background(), testNS, "Savings"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The transfer into Savings is reversed, restoring Checking.
	if got := latestBalance(t, s, "Checking"); got != "1000" {
		t.Fatalf("expected 1000 after cascade, got %s", got)
	}
	if snap, _ := s.Latest(context.Background(), testNS, "Savings"); snap != nil {
		t.Fatalf("deleted account still has snapshots")
	}
	if stored, _ := s.GetByID(context.Background(), testNS, "t2"); stored != nil {
		t.Fatalf("expense of deleted account still stored")
	}
	if stored, _ := s.GetByID(context.Background(), testNS, "t1"); stored != nil {
		t.Fatalf("cascaded transfer still stored")
	}
}

func TestDeleteAccountRemovesExternalTransfers(t *testing.T) {
	e, s := newTestEngine(t)
	declare(t, e, "Wallet", "1000", date(1))
	apply(t, e, "t1", date(5), "100", core.Transfer{From: core.ExternalAccount, To: "Wallet"})

	if err := e.DeleteAccount(context.Background(), testNS, "Wallet"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The inbound transfer's primary account is External, so it must be
	// reversed rather than left behind as an orphaned record.
	if stored, _ := s.GetByID(context.Background(), testNS, "t1"); stored != nil {
		t.Fatalf("transfer from External survived deleting its destination: %+v", stored.Detail)
	}
	all, err := s.All(context.Background(), testNS)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no transactions after delete, got %+v", all)
	}
}

func TestDeleteAccountWithoutCascade(t *testing.T) {
	e, s := newTestEngine(t, WithCascadeDelete(false))
	declare(t, e, "Checking", "1000", date(1))
	declare(t, e, "Savings", "500", date(1))
	apply(t, e, "t1", date(5), "250", core.Transfer{From: "Checking", To: "Savings"})

	if err := e.DeleteAccount(context.Background(), testNS, "Savings"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Without cascade the other side keeps its outflow.
	if got := latestBalance(t, s, "Checking"); got != "750" {
		t.Fatalf("expected 750 without cascade, got %s", got)
	}
}

func TestDeleteMissingAccount(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.DeleteAccount(context.Background(), testNS, "Nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	s := memory.New()
	e := New(s, s)
	ctx := context.Background()

	if err := e.DeclareBaseline(ctx, "alice", "Checking", dec("100"), date(1)); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := e.DeclareBaseline(ctx, "bob", "Checking", dec("900"), date(1)); err != nil {
		t.Fatalf("declare same name in other namespace: %v", err)
	}

	a, _ := s.Latest(ctx, "alice", "Checking")
	b, _ := s.Latest(ctx, "bob", "Checking")
	if a.Balance.String() != "100" || b.Balance.String() != "900" {
		t.Fatalf("namespaces leaked: alice=%s bob=%s", a.Balance, b.Balance)
	}
}
