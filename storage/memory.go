// Package storage persists the address ledger: which account was used last,
// so a restarted session can reconnect it.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"votesync/chain"
)

// MemLedger keeps the ledger in memory.
type MemLedger struct {
	mu      sync.Mutex
	entries map[common.Address]time.Time
}

// NewMemLedger returns an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{entries: make(map[common.Address]time.Time)}
}

// Put records addr as used at at, replacing any earlier timestamp.
func (l *MemLedger) Put(_ context.Context, addr common.Address, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[addr] = at.UTC()
	return nil
}

// Remove forgets addr.
func (l *MemLedger) Remove(_ context.Context, addr common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, addr)
	return nil
}

// MostRecentlyUsed returns the address with the latest timestamp.
func (l *MemLedger) MostRecentlyUsed(context.Context) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	best := chain.DefaultAddress
	var bestAt time.Time
	for addr, at := range l.entries {
		if at.After(bestAt) || (at.Equal(bestAt) && newerTie(addr, best)) {
			best, bestAt = addr, at
		}
	}
	return best, nil
}

// Len reports the number of entries.
func (l *MemLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// newerTie breaks timestamp ties deterministically so every backend agrees.
func newerTie(candidate, current common.Address) bool {
	if chain.IsDefault(current) {
		return true
	}
	return candidate.Cmp(current) > 0
}

// Close is a no-op.
func (l *MemLedger) Close() error { return nil }
