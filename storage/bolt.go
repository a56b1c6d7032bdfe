package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"votesync/chain"
)

var (
	bucketAddresses = []byte("addresses")
	bucketUsed      = []byte("used")
)

// BoltLedger keeps the ledger in a single bbolt file. The used bucket is
// keyed by big-endian timestamp followed by the address bytes, so the last
// key is the most recent entry and ties fall to the higher address.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBoltLedger opens (or creates) the ledger file at path.
func OpenBoltLedger(path string) (*BoltLedger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("bolt ledger path required")
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt ledger: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAddresses, bucketUsed} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate bolt ledger: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

// Close releases the file lock.
func (l *BoltLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Put records addr as used at at, replacing any earlier timestamp.
func (l *BoltLedger) Put(_ context.Context, addr common.Address, at time.Time) error {
	nanos := sortableNanos(at)
	err := l.db.Update(func(tx *bolt.Tx) error {
		addresses, used := tx.Bucket(bucketAddresses), tx.Bucket(bucketUsed)
		if previous := addresses.Get(addr.Bytes()); len(previous) == 8 {
			if err := used.Delete(usedIndexKey(binary.BigEndian.Uint64(previous), addr)); err != nil {
				return err
			}
		}
		stamp := make([]byte, 8)
		binary.BigEndian.PutUint64(stamp, nanos)
		if err := addresses.Put(addr.Bytes(), stamp); err != nil {
			return err
		}
		return used.Put(usedIndexKey(nanos, addr), nil)
	})
	if err != nil {
		return fmt.Errorf("record address: %w", err)
	}
	return nil
}

// Remove forgets addr.
func (l *BoltLedger) Remove(_ context.Context, addr common.Address) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		addresses := tx.Bucket(bucketAddresses)
		previous := addresses.Get(addr.Bytes())
		if len(previous) != 8 {
			return nil
		}
		if err := tx.Bucket(bucketUsed).Delete(usedIndexKey(binary.BigEndian.Uint64(previous), addr)); err != nil {
			return err
		}
		return addresses.Delete(addr.Bytes())
	})
	if err != nil {
		return fmt.Errorf("remove address: %w", err)
	}
	return nil
}

// MostRecentlyUsed returns the address with the latest timestamp.
func (l *BoltLedger) MostRecentlyUsed(context.Context) (common.Address, error) {
	addr := chain.DefaultAddress
	err := l.db.View(func(tx *bolt.Tx) error {
		key, _ := tx.Bucket(bucketUsed).Cursor().Last()
		if key == nil {
			return nil
		}
		if len(key) != 8+common.AddressLength {
			return fmt.Errorf("corrupt ledger index key %x", key)
		}
		addr = common.BytesToAddress(key[8:])
		return nil
	})
	if err != nil {
		return chain.DefaultAddress, fmt.Errorf("load ledger: %w", err)
	}
	return addr, nil
}

func usedIndexKey(nanos uint64, addr common.Address) []byte {
	key := make([]byte, 8, 8+common.AddressLength)
	binary.BigEndian.PutUint64(key, nanos)
	return append(key, addr.Bytes()...)
}
