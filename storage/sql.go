package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"votesync/chain"
)

// LedgerEntry is one row of the address ledger.
type LedgerEntry struct {
	Address   string    `gorm:"primaryKey;size:40"`
	UsedAt    time.Time `gorm:"index;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (LedgerEntry) TableName() string { return "address_ledger" }

// SQLLedger keeps the ledger in a SQL database through gorm.
type SQLLedger struct {
	db *gorm.DB
}

// OpenSQLLedger opens the ledger with driver "sqlite" or "postgres" and
// migrates its table.
func OpenSQLLedger(driver, dsn string) (*SQLLedger, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("ledger dsn required")
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return NewSQLLedger(db)
}

// NewSQLLedger wraps an open database and migrates the ledger table.
func NewSQLLedger(db *gorm.DB) (*SQLLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if err := db.AutoMigrate(&LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &SQLLedger{db: db}, nil
}

// Close releases the connection pool.
func (l *SQLLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Put records addr as used at at, replacing any earlier timestamp.
func (l *SQLLedger) Put(ctx context.Context, addr common.Address, at time.Time) error {
	entry := LedgerEntry{Address: ledgerKey(addr), UsedAt: at.UTC()}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"used_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("record address: %w", err)
	}
	return nil
}

// Remove forgets addr.
func (l *SQLLedger) Remove(ctx context.Context, addr common.Address) error {
	err := l.db.WithContext(ctx).Delete(&LedgerEntry{}, "address = ?", ledgerKey(addr)).Error
	if err != nil {
		return fmt.Errorf("remove address: %w", err)
	}
	return nil
}

// MostRecentlyUsed returns the address with the latest timestamp.
func (l *SQLLedger) MostRecentlyUsed(ctx context.Context) (common.Address, error) {
	var entry LedgerEntry
	err := l.db.WithContext(ctx).Order("used_at DESC").Order("address DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chain.DefaultAddress, nil
	}
	if err != nil {
		return chain.DefaultAddress, fmt.Errorf("load ledger: %w", err)
	}
	raw, err := hex.DecodeString(entry.Address)
	if err != nil || len(raw) != common.AddressLength {
		return chain.DefaultAddress, fmt.Errorf("corrupt ledger address %q", entry.Address)
	}
	return common.BytesToAddress(raw), nil
}

func ledgerKey(addr common.Address) string {
	return hex.EncodeToString(addr.Bytes())
}
