package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"votesync/chain"
	"votesync/events"
	"votesync/observability"
	"votesync/wallet"
)

// State is the manager's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Bound
	BadNetwork
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Bound:
		return "bound"
	case BadNetwork:
		return "bad_network"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config wires a Manager to its collaborators.
type Config struct {
	Guard           chain.Guard
	Dial            wallet.Dialer
	ContractAddress common.Address
	Bind            Binder
	Bridge          *events.Bridge
	Logger          *slog.Logger
	Metrics         *observability.SessionMetrics
	Tracer          trace.Tracer
}

// Manager owns the wallet provider handle and the single contract binding.
// Lifecycle operations are serialized among themselves; reads and writes may
// run concurrently with them and observe either the old or the new binding.
type Manager struct {
	guard   chain.Guard
	dial    wallet.Dialer
	address common.Address
	bind    Binder
	bridge  *events.Bridge
	logger  *slog.Logger
	metrics *observability.SessionMetrics
	tracer  trace.Tracer

	lifecycle sync.Mutex

	mu          sync.RWMutex
	state       State
	provider    wallet.Provider
	providerSub *events.Subscription
	contract    Contract
	contractSub *events.Subscription
	networkID   uint64
	haveNetwork bool
	closed      bool
}

// New returns a disconnected manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("wallet dialer required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("event bridge required")
	}
	if chain.IsDefault(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address required")
	}
	if cfg.Bind == nil {
		cfg.Bind = BindVoting
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("votesync/session")
	}
	return &Manager{
		guard:   cfg.Guard,
		dial:    cfg.Dial,
		address: cfg.ContractAddress,
		bind:    cfg.Bind,
		bridge:  cfg.Bridge,
		logger:  logger.With(slog.String("component", "session")),
		metrics: cfg.Metrics,
		tracer:  tracer,
	}, nil
}

// Guard returns the network guard.
func (m *Manager) Guard() chain.Guard { return m.guard }

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Bound reports whether a contract binding exists.
func (m *Manager) Bound() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contract != nil
}

// NetworkID returns the last network id read from or reported by the wallet.
func (m *Manager) NetworkID() (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.networkID, m.haveNetwork
}

// OpenConnection dials the wallet and starts forwarding its notifications.
// It is a no-op when a connection is already open.
func (m *Manager) OpenConnection(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.provider != nil {
		m.mu.Unlock()
		return nil
	}
	m.state = Connecting
	m.mu.Unlock()

	provider, err := m.dial(ctx)
	if err != nil {
		m.setState(Disconnected)
		return fmt.Errorf("open wallet: %w", err)
	}
	sub, err := m.bridge.SubscribeProvider(provider)
	if err != nil && !errors.Is(err, events.ErrAlreadySubscribed) {
		provider.Close()
		m.setState(Disconnected)
		return fmt.Errorf("subscribe wallet: %w", err)
	}
	if err != nil {
		m.logger.Warn("wallet listeners already active", slog.Any("error", err))
	}

	m.mu.Lock()
	m.provider = provider
	m.providerSub = sub
	m.state = Connected
	m.mu.Unlock()
	m.logger.Info("wallet connected")
	return nil
}

// AttachContract reads the wallet's network and, when it is the expected one,
// binds the contract and starts forwarding its logs. On the wrong network the
// manager moves to BadNetwork, no binding is made and ErrBadNetwork is
// returned along with the observed id. Attaching while bound is a no-op.
func (m *Manager) AttachContract(ctx context.Context) (uint64, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	provider, contract, networkID, closed := m.provider, m.contract, m.networkID, m.closed
	m.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}
	if provider == nil {
		return 0, ErrNotConnected
	}
	if contract != nil {
		return networkID, nil
	}

	raw, err := provider.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read network: %w", err)
	}
	id, err := chain.ChainIDFromBig(raw)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.networkID, m.haveNetwork = id, true
	m.mu.Unlock()

	if !m.guard.IsNetworkValid(id) {
		m.setState(BadNetwork)
		m.logger.Warn("wallet on unexpected network",
			slog.Uint64("network", id),
			slog.Uint64("expected", m.guard.Expected()))
		return id, fmt.Errorf("network %d, expected %d: %w", id, m.guard.Expected(), ErrBadNetwork)
	}

	bound, err := m.bind(m.address, provider.Backend())
	if err != nil {
		return id, fmt.Errorf("bind contract: %w", err)
	}
	sub, err := m.bridge.SubscribeContract(ctx, bound)
	if err != nil {
		return id, fmt.Errorf("subscribe contract: %w", err)
	}

	m.mu.Lock()
	m.contract = bound
	m.contractSub = sub
	m.state = Bound
	m.mu.Unlock()
	m.metrics.RecordRebind()
	m.logger.Info("contract bound",
		slog.String("address", m.address.Hex()),
		slog.Uint64("network", id))
	return id, nil
}

// ResetContract tears down the contract listeners and clears the binding.
func (m *Manager) ResetContract() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.resetContract()
}

func (m *Manager) resetContract() {
	m.mu.Lock()
	sub := m.contractSub
	hadContract := m.contract != nil
	m.contract = nil
	m.contractSub = nil
	if m.provider != nil {
		m.state = Connected
	} else {
		m.state = Disconnected
	}
	m.mu.Unlock()
	sub.Unsubscribe()
	if hadContract {
		m.logger.Info("contract binding released")
	}
}

// ObserveNetwork records a network id reported by the wallet. On the wrong
// network the binding is torn down and the manager moves to BadNetwork. It
// reports whether id is the expected network.
func (m *Manager) ObserveNetwork(id uint64) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	m.networkID, m.haveNetwork = id, true
	m.mu.Unlock()
	if m.guard.IsNetworkValid(id) {
		return true
	}
	m.resetContract()
	m.mu.Lock()
	if m.provider != nil {
		m.state = BadNetwork
	}
	m.mu.Unlock()
	return false
}

// Accounts lists the accounts the wallet already exposes without prompting.
func (m *Manager) Accounts(ctx context.Context) ([]common.Address, error) {
	provider, err := m.currentProvider()
	if err != nil {
		return nil, err
	}
	return provider.Accounts(ctx)
}

// RequestAccounts asks the wallet for account access.
func (m *Manager) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	provider, err := m.currentProvider()
	if err != nil {
		return nil, err
	}
	return provider.RequestAccounts(ctx)
}

type accountSelector interface {
	SelectAccount(addr common.Address) error
}

// SelectAccount makes addr the wallet's active account when the wallet
// supports switching. The wallet raises accountsChanged on success.
func (m *Manager) SelectAccount(addr common.Address) error {
	provider, err := m.currentProvider()
	if err != nil {
		return err
	}
	selector, ok := provider.(accountSelector)
	if !ok {
		return fmt.Errorf("wallet cannot switch accounts")
	}
	return selector.SelectAccount(addr)
}

// Provider returns the open wallet provider, if any.
func (m *Manager) Provider() (wallet.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider, m.provider != nil
}

// Close releases both listener sets and the wallet connection. Further
// lifecycle calls return ErrClosed.
func (m *Manager) Close() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.resetContract()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	provider, sub := m.provider, m.providerSub
	m.provider, m.providerSub = nil, nil
	m.state = Disconnected
	m.mu.Unlock()

	sub.Unsubscribe()
	if provider != nil {
		provider.Close()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) currentProvider() (wallet.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.provider == nil {
		return nil, ErrNotConnected
	}
	return m.provider, nil
}

// binding returns the contract or the reason none is usable.
func (m *Manager) binding() (Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.contract != nil {
		return m.contract, nil
	}
	if m.state == BadNetwork {
		return nil, ErrBadNetwork
	}
	return nil, ErrNotBound
}
