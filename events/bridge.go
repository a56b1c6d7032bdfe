package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"votesync/chain"
	"votesync/observability"
	"votesync/voting"
	"votesync/wallet"
)

const defaultBuffer = 64

var (
	// ErrAlreadySubscribed is returned when a listener set is already active.
	// The existing listeners are left untouched.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrBridgeClosed is returned once the bridge has been closed.
	ErrBridgeClosed = errors.New("event bridge closed")
)

// NotificationSource raises raw wallet notifications.
type NotificationSource interface {
	WatchNotifications(sink chan<- wallet.Notification) event.Subscription
}

// LogSource raises and decodes contract logs.
type LogSource interface {
	WatchLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error)
	ParseLog(log types.Log) (voting.Log, error)
	Sender(ctx context.Context, log types.Log) (common.Address, error)
}

// Config configures a Bridge.
type Config struct {
	Buffer  int
	Logger  *slog.Logger
	Metrics *observability.SessionMetrics
}

// Bridge converts wallet notifications and contract logs into Events on a
// single channel. Each source is forwarded by one goroutine, so events from
// one source keep their order; no order holds across sources.
type Bridge struct {
	out     chan Event
	quit    chan struct{}
	logger  *slog.Logger
	metrics *observability.SessionMetrics

	mu       sync.Mutex
	provider *Subscription
	contract *Subscription
	closed   bool
}

// NewBridge returns an idle bridge.
func NewBridge(cfg Config) *Bridge {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		out:     make(chan Event, buffer),
		quit:    make(chan struct{}),
		logger:  logger.With(slog.String("component", "event-bridge")),
		metrics: cfg.Metrics,
	}
}

// Events returns the normalized event stream. It is never closed; select on
// Done to observe shutdown.
func (b *Bridge) Events() <-chan Event { return b.out }

// Done is closed by Close.
func (b *Bridge) Done() <-chan struct{} { return b.quit }

// SubscribeProvider starts forwarding wallet notifications. A second call
// while the first subscription is live returns ErrAlreadySubscribed.
func (b *Bridge) SubscribeProvider(src NotificationSource) (*Subscription, error) {
	if src == nil {
		return nil, fmt.Errorf("notification source required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBridgeClosed
	}
	if b.provider != nil {
		return nil, fmt.Errorf("provider listeners: %w", ErrAlreadySubscribed)
	}
	sink := make(chan wallet.Notification, cap(b.out))
	var sub *Subscription
	sub = newSubscription("provider", src.WatchNotifications(sink), nil, func() { b.release(sub) })
	b.provider = sub
	go b.forwardNotifications(sub, sink)
	return sub, nil
}

// SubscribeContract starts forwarding the contract's logs. A second call
// while the first subscription is live returns ErrAlreadySubscribed.
func (b *Bridge) SubscribeContract(ctx context.Context, src LogSource) (*Subscription, error) {
	if src == nil {
		return nil, fmt.Errorf("log source required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBridgeClosed
	}
	if b.contract != nil {
		return nil, fmt.Errorf("contract listeners: %w", ErrAlreadySubscribed)
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	sink := make(chan types.Log, cap(b.out))
	raw, err := src.WatchLogs(watchCtx, sink)
	if err != nil {
		cancel()
		return nil, err
	}
	var sub *Subscription
	sub = newSubscription("contract", raw, cancel, func() { b.release(sub) })
	b.contract = sub
	go b.forwardLogs(watchCtx, sub, src, sink)
	return sub, nil
}

// UnsubscribeAll releases both listener sets. It is safe to call with none
// active.
func (b *Bridge) UnsubscribeAll() {
	b.mu.Lock()
	subs := []*Subscription{b.contract, b.provider}
	b.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// Close releases all listeners and refuses new ones.
func (b *Bridge) Close() {
	b.UnsubscribeAll()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.quit)
}

// Active reports which listener sets are live.
func (b *Bridge) Active() (provider, contract bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.provider != nil, b.contract != nil
}

func (b *Bridge) release(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch sub {
	case b.provider:
		b.provider = nil
	case b.contract:
		b.contract = nil
	}
}

func (b *Bridge) publish(sub *Subscription, ev Event) bool {
	select {
	case b.out <- ev:
		b.metrics.RecordEvent(string(ev.Kind()))
		return true
	case <-sub.stop:
		return false
	case <-b.quit:
		return false
	}
}

func (b *Bridge) forwardNotifications(sub *Subscription, sink <-chan wallet.Notification) {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case err, ok := <-sub.raw.Err():
			if ok && err != nil {
				b.logger.Warn("provider subscription failed", slog.Any("error", err))
				go sub.Unsubscribe()
			}
			return
		case n := <-sink:
			ev, err := NormalizeNotification(n)
			if err != nil {
				b.logger.Warn("dropping wallet notification", slog.String("kind", string(n.Kind)), slog.Any("error", err))
				continue
			}
			if !b.publish(sub, ev) {
				return
			}
		}
	}
}

func (b *Bridge) forwardLogs(ctx context.Context, sub *Subscription, src LogSource, sink <-chan types.Log) {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case err, ok := <-sub.raw.Err():
			if ok && err != nil {
				b.logger.Warn("contract subscription failed", slog.Any("error", err))
				go sub.Unsubscribe()
			}
			return
		case log := <-sink:
			if log.Removed {
				b.logger.Debug("skipping removed log", slog.String("tx", log.TxHash.Hex()))
				continue
			}
			ev, err := normalizeLog(ctx, src, log)
			if err != nil {
				b.logger.Warn("dropping contract log", slog.String("tx", log.TxHash.Hex()), slog.Any("error", err))
				continue
			}
			if !b.publish(sub, ev) {
				return
			}
		}
	}
}

// NormalizeNotification converts a raw wallet notification.
func NormalizeNotification(n wallet.Notification) (Event, error) {
	switch n.Kind {
	case wallet.ChainChanged:
		id, err := chain.ParseChainID(n.ChainID)
		if err != nil {
			return nil, err
		}
		return NetworkChanged{NetworkID: id}, nil
	case wallet.AccountsChanged:
		if len(n.Accounts) == 0 {
			return AccountChanged{Address: chain.DefaultAddress}, nil
		}
		addr, err := chain.FormatAddress(n.Accounts[0])
		if err != nil {
			return nil, err
		}
		return AccountChanged{Address: addr}, nil
	default:
		return nil, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

func normalizeLog(ctx context.Context, src LogSource, raw types.Log) (Event, error) {
	decoded, err := src.ParseLog(raw)
	if err != nil {
		return nil, err
	}
	switch l := decoded.(type) {
	case voting.WorkflowStatusChangeLog:
		return PhaseChanged{Old: l.Previous, New: l.New}, nil
	case voting.VoterRegisteredLog:
		by, err := src.Sender(ctx, raw)
		if err != nil {
			return nil, err
		}
		return VoterRegistered{Voter: l.Voter, By: by}, nil
	case voting.ProposalRegisteredLog:
		by, err := src.Sender(ctx, raw)
		if err != nil {
			return nil, err
		}
		return ProposalRegistered{Index: l.ProposalID, By: by}, nil
	case voting.VotedLog:
		return Voted{Voter: l.Voter, ProposalID: l.ProposalID}, nil
	default:
		return nil, fmt.Errorf("unhandled contract log %T", decoded)
	}
}
