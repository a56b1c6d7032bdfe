package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"votesync/chain"
)

const (
	addressKeyPrefix = "addr:"
	usedKeyPrefix    = "used:"
)

// LevelDBLedger keeps the ledger in LevelDB. Each address has a primary entry
// holding its timestamp and an index entry ordered by timestamp.
type LevelDBLedger struct {
	db *leveldb.DB
}

// OpenLevelDBLedger opens (or creates) a ledger at path.
func OpenLevelDBLedger(path string) (*LevelDBLedger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb ledger path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb ledger path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb ledger: %w", err)
	}
	return &LevelDBLedger{db: db}, nil
}

// Close releases the database.
func (l *LevelDBLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Put records addr as used at at, replacing any earlier timestamp.
func (l *LevelDBLedger) Put(_ context.Context, addr common.Address, at time.Time) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("leveldb ledger not configured")
	}
	key := addressKey(addr)
	batch := new(leveldb.Batch)
	previous, err := l.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load address: %w", err)
	default:
		batch.Delete(usedKey(decodeNanos(previous), addr))
	}
	nanos := sortableNanos(at)
	batch.Put(key, encodeNanos(nanos))
	batch.Put(usedKey(nanos, addr), nil)
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("record address: %w", err)
	}
	return nil
}

// Remove forgets addr.
func (l *LevelDBLedger) Remove(_ context.Context, addr common.Address) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("leveldb ledger not configured")
	}
	key := addressKey(addr)
	previous, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load address: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Delete(usedKey(decodeNanos(previous), addr))
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("remove address: %w", err)
	}
	return nil
}

// MostRecentlyUsed returns the address with the latest timestamp.
func (l *LevelDBLedger) MostRecentlyUsed(context.Context) (common.Address, error) {
	if l == nil || l.db == nil {
		return chain.DefaultAddress, fmt.Errorf("leveldb ledger not configured")
	}
	iter := l.db.NewIterator(util.BytesPrefix([]byte(usedKeyPrefix)), nil)
	defer iter.Release()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if addr, ok := parseUsedKey(iter.Key()); ok {
			return addr, nil
		}
	}
	if err := iter.Error(); err != nil {
		return chain.DefaultAddress, fmt.Errorf("iterate ledger: %w", err)
	}
	return chain.DefaultAddress, nil
}

func addressKey(addr common.Address) []byte {
	return []byte(addressKeyPrefix + hex.EncodeToString(addr.Bytes()))
}

// usedKey is the prefix, the sortable timestamp and the address bytes.
func usedKey(nanos uint64, addr common.Address) []byte {
	key := make([]byte, 0, len(usedKeyPrefix)+8+common.AddressLength)
	key = append(key, usedKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, nanos)
	return append(key, addr.Bytes()...)
}

func parseUsedKey(key []byte) (common.Address, bool) {
	if len(key) != len(usedKeyPrefix)+8+common.AddressLength {
		return common.Address{}, false
	}
	return common.BytesToAddress(key[len(usedKeyPrefix)+8:]), true
}

func encodeNanos(nanos uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, nanos)
}

func decodeNanos(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
