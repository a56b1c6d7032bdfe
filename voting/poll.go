package voting

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const (
	// DefaultLogPollInterval is the eth_getLogs cadence on HTTP endpoints.
	DefaultLogPollInterval = 2 * time.Second
	// maxPollFailures consecutive failed polls end the subscription.
	maxPollFailures = 5
)

// pollLogs emulates a log subscription by querying every block range past the
// head seen at subscribe time. The subscription ends when ctx is cancelled,
// on Unsubscribe, or after maxPollFailures consecutive failed polls.
func (c *Contract) pollLogs(ctx context.Context, query ethereum.FilterQuery, sink chan<- types.Log) (event.Subscription, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read head for log polling: %w", err)
	}
	next := new(big.Int).Add(head.Number, big.NewInt(1))
	interval := c.pollInterval

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			latest, err := c.backend.HeaderByNumber(ctx, nil)
			if err == nil && latest.Number.Cmp(next) < 0 {
				failures = 0
				continue
			}
			var logs []types.Log
			if err == nil {
				q := query
				q.FromBlock = new(big.Int).Set(next)
				q.ToBlock = new(big.Int).Set(latest.Number)
				logs, err = c.backend.FilterLogs(ctx, q)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failures++
				if failures >= maxPollFailures {
					return fmt.Errorf("poll contract logs: %w", err)
				}
				continue
			}
			failures = 0
			for _, l := range logs {
				select {
				case sink <- l:
				case <-quit:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
			next = new(big.Int).Add(latest.Number, big.NewInt(1))
		}
	}), nil
}
