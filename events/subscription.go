package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// Subscription is an owned listener set. Unsubscribe must be called to
// release it; it is idempotent and returns once the forwarding goroutine has
// stopped, so no event from this source is published afterwards.
type Subscription struct {
	source    string
	raw       event.Subscription
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
	cancel    func()
	onRelease func()
}

func newSubscription(source string, raw event.Subscription, cancel, onRelease func()) *Subscription {
	return &Subscription{
		source:    source,
		raw:       raw,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		cancel:    cancel,
		onRelease: onRelease,
	}
}

// Source names the listener set ("provider" or "contract").
func (s *Subscription) Source() string { return s.source }

// Done is closed once forwarding has stopped, either through Unsubscribe or
// because the underlying source failed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe releases the listeners.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stop)
		if s.cancel != nil {
			s.cancel()
		}
		s.raw.Unsubscribe()
		<-s.done
		if s.onRelease != nil {
			s.onRelease()
		}
	})
}
