package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an address ledger backend.
type Ledger interface {
	Put(ctx context.Context, addr common.Address, at time.Time) error
	Remove(ctx context.Context, addr common.Address) error
	MostRecentlyUsed(ctx context.Context) (common.Address, error)
	Close() error
}

// Open returns the backend named by backend: "memory", "leveldb" or "bolt"
// (at path), "sqlite" or "postgres" (at dsn).
func Open(backend, path, dsn string) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemLedger(), nil
	case "leveldb":
		return OpenLevelDBLedger(path)
	case "bolt":
		return OpenBoltLedger(path)
	case "sqlite", "postgres":
		return OpenSQLLedger(backend, dsn)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

// sortableNanos maps at to a uint64 whose big-endian bytes order like the
// timestamps themselves, including those before 1970.
func sortableNanos(at time.Time) uint64 {
	return uint64(at.UTC().UnixNano()) ^ (1 << 63)
}
