package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"votesync/chain"
	"votesync/events"
	"votesync/observability"
	"votesync/session"
)

// Config wires a Store.
type Config struct {
	Manager *session.Manager
	Bridge  *events.Bridge
	Ledger  AddressLedger
	Logger  *slog.Logger
	Metrics *observability.SessionMetrics
	Clock   func() time.Time
}

// Store owns the Session. Every mutation happens inside one trigger (boot, a
// bridged event or an explicit request) and triggers run one at a time, each
// including the remote calls it awaits.
type Store struct {
	mgr     *session.Manager
	bridge  *events.Bridge
	ledger  AddressLedger
	logger  *slog.Logger
	metrics *observability.SessionMetrics
	clock   func() time.Time

	serial sync.Mutex

	mu     sync.RWMutex
	state  Session
	closed bool

	snapshots event.Feed
	notices   event.Feed
	applied   event.Feed
	scope     event.SubscriptionScope
}

// New returns a store in the loading state.
func New(cfg Config) (*Store, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("event bridge required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("address ledger required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		mgr:     cfg.Manager,
		bridge:  cfg.Bridge,
		ledger:  cfg.Ledger,
		logger:  logger.With(slog.String("component", "store")),
		metrics: cfg.Metrics,
		clock:   clock,
		state: Session{
			Address: chain.DefaultAddress,
			Loading: true,
			Pending: make(map[PendingKind]Pending),
		},
	}, nil
}

// Manager exposes the session manager for read-only queries.
func (s *Store) Manager() *session.Manager { return s.mgr }

// Snapshot returns a copy of the current Session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// SubscribeSnapshots delivers a Session copy after every change. Slow
// receivers hold up the store; use a buffered channel.
func (s *Store) SubscribeSnapshots(ch chan<- Session) event.Subscription {
	return s.track(s.snapshots.Subscribe(ch))
}

// SubscribeNotices delivers one-shot notices.
func (s *Store) SubscribeNotices(ch chan<- Notice) event.Subscription {
	return s.track(s.notices.Subscribe(ch))
}

// SubscribeEvents delivers each bridged event after it has been applied.
func (s *Store) SubscribeEvents(ch chan<- Applied) event.Subscription {
	return s.track(s.applied.Subscribe(ch))
}

// track ties sub to the store's lifetime. After Close the returned
// subscription fails immediately with session.ErrClosed.
func (s *Store) track(sub event.Subscription) event.Subscription {
	if tracked := s.scope.Track(sub); tracked != nil {
		return tracked
	}
	sub.Unsubscribe()
	return event.NewSubscription(func(<-chan struct{}) error { return session.ErrClosed })
}

// Run applies bridged events in arrival order until ctx ends or the bridge
// closes. Each event is fully handled, including its remote reads, before
// the next is taken.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.bridge.Done():
			return nil
		case ev := <-s.bridge.Events():
			s.serial.Lock()
			s.dispatch(ctx, ev)
			s.serial.Unlock()
			s.applied.Send(Applied{Event: ev, At: s.clock()})
		}
	}
}

// Close stops listening and ignores results that land afterwards. Writes
// already submitted are not cancelled.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.bridge.UnsubscribeAll()
	s.scope.Close()
}

// update applies fn and publishes the result. It is a no-op after Close.
func (s *Store) update(fn func(*Session)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(&s.state)
	if !s.state.NetworkValid {
		s.state.IsAdmin = false
	}
	snap := s.state.Clone()
	s.mu.Unlock()
	s.snapshots.Send(snap)
}

func (s *Store) current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) notify(level NoticeLevel, kind, message string) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	s.notices.Send(Notice{Level: level, Kind: kind, Message: message, At: s.clock()})
}

// fail records a handler error as a notice.
func (s *Store) fail(kind string, err error) {
	s.metrics.RecordHandlerError(kind)
	s.logger.Warn("session trigger failed", slog.String("event", kind), slog.Any("error", err))
	s.notify(NoticeError, kind, err.Error())
}
