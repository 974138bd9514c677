package ledger

import (
	"sort"
	"sync"
)

// lockTable serializes mutations per account. Keys are namespace-qualified so
// different users never contend. Multi-account operations (transfers) acquire
// their locks in sorted order to stay deadlock-free.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}

// acquire locks every key and returns the matching release function.
func (t *lockTable) acquire(keys ...string) func() {
	sort.Strings(keys)
	acquired := make([]*sync.Mutex, 0, len(keys))
	var prev string
	for i, key := range keys {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		m := t.get(key)
		m.Lock()
		acquired = append(acquired, m)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
