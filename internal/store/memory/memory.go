// Package memory is the in-process store backend. It keeps every namespace in
// plain maps behind one mutex, which also gives the ledger engine the write
// serialization it needs without a TxRunner.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tally/assets"
	"tally/internal/core"
)

type namespace struct {
	snapshots map[string][]core.Snapshot // account -> timeline, ordered by At
	txns      map[string]core.Transaction
	taxonomy  core.Taxonomy
}

// Store implements store.SnapshotStore, store.TransactionStore and
// store.CategoryStore over in-memory maps.
type Store struct {
	mu         sync.Mutex
	namespaces map[string]*namespace
}

func New() *Store {
	return &Store{namespaces: make(map[string]*namespace)}
}

func (s *Store) ns(name string) *namespace {
	n, ok := s.namespaces[name]
	if !ok {
		n = &namespace{
			snapshots: make(map[string][]core.Snapshot),
			txns:      make(map[string]core.Transaction),
		}
		s.namespaces[name] = n
	}
	return n
}

func (s *Store) LatestBefore(_ context.Context, ns, account string, at time.Time) (*core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline := s.ns(ns).snapshots[account]
	for i := len(timeline) - 1; i >= 0; i-- {
		if timeline[i].At.Before(at) {
			snap := timeline[i]
			return &snap, nil
		}
	}
	return nil, nil
}

func (s *Store) RangeAfter(_ context.Context, ns, account string, at time.Time) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Snapshot
	for _, snap := range s.ns(ns).snapshots[account] {
		if snap.At.After(at) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Store) Put(_ context.Context, ns string, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	timeline := append(n.snapshots[snap.Account], snap)
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].At.Before(timeline[j].At) })
	n.snapshots[snap.Account] = timeline
	return nil
}

func (s *Store) ShiftAfter(_ context.Context, ns, account string, at time.Time, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline := s.ns(ns).snapshots[account]
	for i := range timeline {
		if timeline[i].At.After(at) {
			timeline[i].Balance = timeline[i].Balance.Add(delta)
		}
	}
	return nil
}

func (s *Store) ByTag(_ context.Context, ns, txnID string) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Snapshot
	for _, timeline := range s.ns(ns).snapshots {
		for _, snap := range timeline {
			if snap.TxnID == txnID {
				out = append(out, snap)
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteByTag(_ context.Context, ns, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	for account, timeline := range n.snapshots {
		kept := timeline[:0]
		for _, snap := range timeline {
			if snap.TxnID != txnID {
				kept = append(kept, snap)
			}
		}
		n.snapshots[account] = kept
	}
	return nil
}

func (s *Store) Latest(_ context.Context, ns, account string) (*core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline := s.ns(ns).snapshots[account]
	if len(timeline) == 0 {
		return nil, nil
	}
	snap := timeline[len(timeline)-1]
	return &snap, nil
}

func (s *Store) History(_ context.Context, ns, account string) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline := s.ns(ns).snapshots[account]
	out := make([]core.Snapshot, len(timeline))
	copy(out, timeline)
	return out, nil
}

func (s *Store) Accounts(_ context.Context, ns string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	out := make([]string, 0, len(n.snapshots))
	for account, timeline := range n.snapshots {
		if len(timeline) > 0 {
			out = append(out, account)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Relabel(_ context.Context, ns, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	if timeline, ok := n.snapshots[oldName]; ok {
		for i := range timeline {
			timeline[i].Account = newName
		}
		n.snapshots[newName] = timeline
		delete(n.snapshots, oldName)
	}
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, ns, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ns(ns).snapshots, account)
	return nil
}

func (s *Store) Insert(_ context.Context, ns string, txn core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ns(ns).txns[txn.ID] = txn
	return nil
}

func (s *Store) GetByID(_ context.Context, ns, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.ns(ns).txns[id]
	if !ok {
		return nil, nil
	}
	return &txn, nil
}

func (s *Store) DeleteByID(_ context.Context, ns, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ns(ns).txns, id)
	return nil
}

func (s *Store) Range(_ context.Context, ns string, start, end time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, txn := range s.ns(ns).txns {
		if !txn.Date.Before(start) && !txn.Date.After(end) {
			out = append(out, txn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) All(_ context.Context, ns string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	out := make([]core.Transaction, 0, len(n.txns))
	for _, txn := range n.txns {
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) Referencing(_ context.Context, ns, account string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, txn := range s.ns(ns).txns {
		if references(txn, account) {
			out = append(out, txn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) RelabelAccount(_ context.Context, ns, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	for id, txn := range n.txns {
		switch d := txn.Detail.(type) {
		case core.Income:
			if d.Account == oldName {
				d.Account = newName
				txn.Detail = d
			}
		case core.Expense:
			if d.Account == oldName {
				d.Account = newName
				txn.Detail = d
			}
		case core.Transfer:
			if d.From == oldName {
				d.From = newName
			}
			if d.To == oldName {
				d.To = newName
			}
			txn.Detail = d
		}
		n.txns[id] = txn
	}
	return nil
}

func (s *Store) DeleteByPrimaryAccount(_ context.Context, ns, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	for id, txn := range n.txns {
		if primaryAccount(txn) == account {
			delete(n.txns, id)
		}
	}
	return nil
}

func (s *Store) Taxonomy(_ context.Context, ns string, flow core.Flow) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	if n.taxonomy == nil {
		t, err := core.ParseTaxonomy(assets.DefaultCategories)
		if err != nil {
			return nil, err
		}
		n.taxonomy = t
	}
	return n.taxonomy[flow], nil
}

func (s *Store) Seed(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ns(ns)
	if n.taxonomy != nil {
		return nil
	}
	t, err := core.ParseTaxonomy(assets.DefaultCategories)
	if err != nil {
		return err
	}
	n.taxonomy = t
	return nil
}

func references(txn core.Transaction, account string) bool {
	switch d := txn.Detail.(type) {
	case core.Income:
		return d.Account == account
	case core.Expense:
		return d.Account == account
	case core.Transfer:
		return d.From == account || d.To == account
	}
	return false
}

func primaryAccount(txn core.Transaction) string {
	switch d := txn.Detail.(type) {
	case core.Income:
		return d.Account
	case core.Expense:
		return d.Account
	case core.Transfer:
		return d.From
	}
	return ""
}
