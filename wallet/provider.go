package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"votesync/voting"
)

var (
	// ErrNoWallet reports that no wallet provider is available to this
	// process. Only the connect affordance remains usable.
	ErrNoWallet = errors.New("no wallet available")
	// ErrLocked reports that no account is unlocked for signing.
	ErrLocked = errors.New("wallet locked")
	// ErrNoAccounts reports that the wallet holds no accounts.
	ErrNoAccounts = errors.New("wallet has no accounts")
)

// NotificationKind discriminates raw wallet notifications.
type NotificationKind string

const (
	ChainChanged    NotificationKind = "chainChanged"
	AccountsChanged NotificationKind = "accountsChanged"
)

// Notification is a raw, wallet-shaped notification. ChainID is hex encoded
// for ChainChanged; Accounts lists hex addresses, active first, for
// AccountsChanged. An empty Accounts list means the wallet disconnected.
type Notification struct {
	Kind     NotificationKind
	ChainID  string
	Accounts []string
}

// Provider is a connected wallet: network queries, account access, signing
// and out-of-band notifications.
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	// Accounts lists accounts already authorised for this session without
	// prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks the wallet for account access, prompting when
	// required.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
	WatchNotifications(sink chan<- Notification) event.Subscription
	Backend() voting.Backend
	Close()
}

// Dialer opens a provider. It returns ErrNoWallet when none is available.
type Dialer func(ctx context.Context) (Provider, error)
