package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"votesync/voting"
)

const defaultPollInterval = 2 * time.Second

// Config configures a keystore-backed provider.
type Config struct {
	RPCURL       string
	KeystoreDir  string
	Account      string
	PollInterval time.Duration
	// Passphrase resolves the keystore passphrase when account access is
	// requested.
	Passphrase func() (string, error)
	Logger     *slog.Logger
}

// Available reports whether cfg describes a reachable wallet: an RPC endpoint
// and an existing keystore directory.
func Available(cfg Config) bool {
	if strings.TrimSpace(cfg.RPCURL) == "" || strings.TrimSpace(cfg.KeystoreDir) == "" {
		return false
	}
	info, err := os.Stat(cfg.KeystoreDir)
	return err == nil && info.IsDir()
}

// NewKeystoreDialer returns a Dialer opening a KeystoreProvider, or
// ErrNoWallet when cfg does not describe one.
func NewKeystoreDialer(cfg Config) Dialer {
	return func(ctx context.Context) (Provider, error) {
		if !Available(cfg) {
			return nil, ErrNoWallet
		}
		return OpenKeystore(ctx, cfg)
	}
}

// KeystoreProvider is a wallet made of a JSON-RPC node connection and a local
// go-ethereum keystore. Every keystore account is visible to the session; the
// active one is listed first and must be unlocked through RequestAccounts
// before it can sign.
type KeystoreProvider struct {
	cfg    Config
	client *ethclient.Client
	ks     *keystore.KeyStore
	logger *slog.Logger

	feed  event.Feed
	scope event.SubscriptionScope

	mu        sync.Mutex
	active    common.Address
	unlocked  map[common.Address]bool
	lastChain *big.Int

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenKeystore dials the node, opens the keystore and starts watching for
// network and account changes.
func OpenKeystore(ctx context.Context, cfg Config) (*KeystoreProvider, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client, err := ethclient.DialContext(ctx, strings.TrimSpace(cfg.RPCURL))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	p := &KeystoreProvider{
		cfg:       cfg,
		client:    client,
		ks:        keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP),
		logger:    logger.With(slog.String("component", "wallet")),
		unlocked:  make(map[common.Address]bool),
		lastChain: chainID,
		quit:      make(chan struct{}),
	}
	p.active = p.pickActive(strings.TrimSpace(cfg.Account))

	p.wg.Add(1)
	go p.loop()
	return p, nil
}

func (p *KeystoreProvider) pickActive(preferred string) common.Address {
	all := p.ks.Accounts()
	if preferred != "" && common.IsHexAddress(preferred) {
		want := common.HexToAddress(preferred)
		for _, acct := range all {
			if acct.Address == want {
				return want
			}
		}
		p.logger.Warn("preferred account not in keystore", slog.String("address", want.Hex()))
	}
	if len(all) == 0 {
		return common.Address{}
	}
	return all[0].Address
}

// ChainID returns the node's chain id.
func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.client.ChainID(ctx)
}

// Accounts lists keystore accounts, active first.
func (p *KeystoreProvider) Accounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accountsLocked(), nil
}

func (p *KeystoreProvider) accountsLocked() []common.Address {
	if p.active == (common.Address{}) {
		return nil
	}
	out := []common.Address{p.active}
	for _, acct := range p.ks.Accounts() {
		if acct.Address != p.active {
			out = append(out, acct.Address)
		}
	}
	return out
}

// RequestAccounts unlocks the active account and returns the account list.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == (common.Address{}) {
		p.active = p.pickActive(p.cfg.Account)
		if p.active == (common.Address{}) {
			return nil, ErrNoAccounts
		}
	}
	if !p.unlocked[p.active] {
		if p.cfg.Passphrase == nil {
			return nil, fmt.Errorf("unlock %s: %w", p.active.Hex(), ErrLocked)
		}
		passphrase, err := p.cfg.Passphrase()
		if err != nil {
			return nil, fmt.Errorf("resolve passphrase: %w", err)
		}
		if err := p.ks.Unlock(accounts.Account{Address: p.active}, passphrase); err != nil {
			return nil, fmt.Errorf("unlock %s: %w", p.active.Hex(), err)
		}
		p.unlocked[p.active] = true
	}
	return p.accountsLocked(), nil
}

// Signer returns transact options for the active account.
func (p *KeystoreProvider) Signer(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	p.mu.Lock()
	active := p.active
	unlocked := p.unlocked[active]
	p.mu.Unlock()
	if active == (common.Address{}) || !unlocked {
		return nil, ErrLocked
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, accounts.Account{Address: active}, chainID)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// SelectAccount makes addr the active account and raises accountsChanged.
func (p *KeystoreProvider) SelectAccount(addr common.Address) error {
	if !p.ks.HasAddress(addr) {
		return fmt.Errorf("account %s not in keystore", addr.Hex())
	}
	p.mu.Lock()
	if p.active == addr {
		p.mu.Unlock()
		return nil
	}
	p.active = addr
	list := p.accountsLocked()
	p.mu.Unlock()
	p.notifyAccounts(list)
	return nil
}

// WatchNotifications delivers raw chainChanged/accountsChanged notifications.
func (p *KeystoreProvider) WatchNotifications(sink chan<- Notification) event.Subscription {
	return p.scope.Track(p.feed.Subscribe(sink))
}

// Backend exposes the node connection for contract bindings.
func (p *KeystoreProvider) Backend() voting.Backend { return p.client }

// Close stops watching and releases the node connection.
func (p *KeystoreProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		// Unsubscribing first unblocks a Send stuck on a slow sink.
		p.scope.Close()
		p.wg.Wait()
		p.client.Close()
	})
}

func (p *KeystoreProvider) loop() {
	defer p.wg.Done()
	walletEvents := make(chan accounts.WalletEvent, 16)
	sub := p.ks.Subscribe(walletEvents)
	defer sub.Unsubscribe()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.pollChain()
		case ev := <-walletEvents:
			p.walletChanged(ev)
		}
	}
}

func (p *KeystoreProvider) pollChain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PollInterval)
	defer cancel()
	id, err := p.client.ChainID(ctx)
	if err != nil {
		p.logger.Debug("poll chain id failed", slog.Any("error", err))
		return
	}
	p.mu.Lock()
	changed := p.lastChain == nil || p.lastChain.Cmp(id) != 0
	p.lastChain = id
	p.mu.Unlock()
	if changed {
		p.feed.Send(Notification{Kind: ChainChanged, ChainID: hexutil.EncodeBig(id)})
	}
}

func (p *KeystoreProvider) walletChanged(ev accounts.WalletEvent) {
	p.mu.Lock()
	previous := p.active
	if previous != (common.Address{}) && !p.ks.HasAddress(previous) {
		delete(p.unlocked, previous)
		p.active = common.Address{}
	}
	if p.active == (common.Address{}) {
		p.active = p.pickActive(p.cfg.Account)
	}
	current := p.active
	list := p.accountsLocked()
	p.mu.Unlock()
	if current != previous {
		p.logger.Info("active account changed",
			slog.String("previous", previous.Hex()),
			slog.String("address", current.Hex()),
			slog.Int("kind", int(ev.Kind)))
		p.notifyAccounts(list)
	}
}

func (p *KeystoreProvider) notifyAccounts(list []common.Address) {
	hexes := make([]string, 0, len(list))
	for _, addr := range list {
		hexes = append(hexes, addr.Hex())
	}
	p.feed.Send(Notification{Kind: AccountsChanged, Accounts: hexes})
}
