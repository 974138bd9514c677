package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const ns = "user1"

func date(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

func snap(account string, day int, balance int64, txnID string) core.Snapshot {
	return core.Snapshot{
		Account: account,
		At:      date(day),
		Balance: decimal.NewFromInt(balance),
		TxnID:   txnID,
	}
}

func TestLatestBeforeIsStrict(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, ns, snap("a", 1, 100, ""))
	s.Put(ctx, ns, snap("a", 5, 200, "t1"))

	got, err := s.LatestBefore(ctx, ns, "a", date(5))
	if err != nil {
		t.Fatalf("latest before: %v", err)
	}
	if got == nil || got.Balance.String() != "100" {
		t.Fatalf("expected the day-1 snapshot, got %+v", got)
	}

	if got, _ := s.LatestBefore(ctx, ns, "a", date(1)); got != nil {
		t.Fatalf("nothing exists before day 1, got %+v", got)
	}
}

func TestPutKeepsTimelineOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, ns, snap("a", 5, 200, "t1"))
	s.Put(ctx, ns, snap("a", 1, 100, ""))
	s.Put(ctx, ns, snap("a", 3, 150, "t2"))

	history, _ := s.History(ctx, ns, "a")
	for i := 1; i < len(history); i++ {
		if history[i].At.Before(history[i-1].At) {
			t.Fatalf("history out of order: %+v", history)
		}
	}
}

func TestShiftAfter(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, ns, snap("a", 1, 100, ""))
	s.Put(ctx, ns, snap("a", 5, 200, "t1"))
	s.Put(ctx, ns, snap("a", 9, 300, "t2"))

	if err := s.ShiftAfter(ctx, ns, "a", date(5), decimal.NewFromInt(50)); err != nil {
		t.Fatalf("shift: %v", err)
	}
	history, _ := s.History(ctx, ns, "a")
	want := []string{"100", "200", "350"}
	for i, snap := range history {
		if snap.Balance.String() != want[i] {
			t.Fatalf("snapshot %d: expected %s, got %s", i, want[i], snap.Balance)
		}
	}
}

func TestByTagAndDeleteByTag(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, ns, snap("a", 1, 100, "t1"))
	s.Put(ctx, ns, snap("b", 1, -100, "t1"))
	s.Put(ctx, ns, snap("a", 2, 150, "t2"))

	tagged, _ := s.ByTag(ctx, ns, "t1")
	if len(tagged) != 2 {
		t.Fatalf("expected 2 tagged snapshots, got %d", len(tagged))
	}

	if err := s.DeleteByTag(ctx, ns, "t1"); err != nil {
		t.Fatalf("delete by tag: %v", err)
	}
	if tagged, _ := s.ByTag(ctx, ns, "t1"); len(tagged) != 0 {
		t.Fatalf("tag survived delete: %+v", tagged)
	}
	if remaining, _ := s.History(ctx, ns, "a"); len(remaining) != 1 {
		t.Fatalf("unrelated snapshot lost: %+v", remaining)
	}
}

func TestRelabelMovesTimeline(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, ns, snap("old", 1, 100, ""))

	if err := s.Relabel(ctx, ns, "old", "new"); err != nil {
		t.Fatalf("relabel: %v", err)
	}
	if got, _ := s.Latest(ctx, ns, "old"); got != nil {
		t.Fatalf("old name still present")
	}
	got, _ := s.Latest(ctx, ns, "new")
	if got == nil || got.Account != "new" {
		t.Fatalf("expected relabeled snapshot, got %+v", got)
	}
}

func TestReferencingFindsTransferDestination(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Insert(ctx, ns, core.Transaction{
		ID: "t1", Date: date(1), Amount: decimal.NewFromInt(10),
		Detail: core.Transfer{From: "a", To: "b"},
	})
	s.Insert(ctx, ns, core.Transaction{
		ID: "t2", Date: date(2), Amount: decimal.NewFromInt(10),
		Detail: core.Expense{Account: "a", CategoryID: 1, SubcategoryID: 1},
	})

	got, _ := s.Referencing(ctx, ns, "b")
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("expected only the transfer, got %+v", got)
	}
}

func TestDeleteByPrimaryAccountKeepsIncomingTransfers(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Insert(ctx, ns, core.Transaction{
		ID: "t1", Date: date(1), Amount: decimal.NewFromInt(10),
		Detail: core.Transfer{From: "a", To: "b"},
	})
	s.Insert(ctx, ns, core.Transaction{
		ID: "t2", Date: date(2), Amount: decimal.NewFromInt(10),
		Detail: core.Expense{Account: "b", CategoryID: 1, SubcategoryID: 1},
	})

	if err := s.DeleteByPrimaryAccount(ctx, ns, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetByID(ctx, ns, "t2"); got != nil {
		t.Fatalf("expense of b should be gone")
	}
	// The transfer's primary account is its source.
	if got, _ := s.GetByID(ctx, ns, "t1"); got == nil {
		t.Fatalf("transfer from a should survive")
	}
}

func TestTaxonomyFallsBackToDefault(t *testing.T) {
	s := New()
	cats, err := s.Taxonomy(context.Background(), ns, core.FlowOut)
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	if len(cats) == 0 {
		t.Fatalf("expected default out categories")
	}
	in, err := s.Taxonomy(context.Background(), ns, core.FlowIn)
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	if len(in) == 0 {
		t.Fatalf("expected default in categories")
	}
}
