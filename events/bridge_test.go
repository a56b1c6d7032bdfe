package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"votesync/chain"
	"votesync/observability"
	"votesync/voting"
	"votesync/wallet"
)

type feedWallet struct {
	feed event.Feed
}

func (w *feedWallet) WatchNotifications(sink chan<- wallet.Notification) event.Subscription {
	return w.feed.Subscribe(sink)
}

// feedContract decodes logs by their first topic; the byte value indexes into
// decoded.
type feedContract struct {
	feed    event.Feed
	decoded []voting.Log
	sender  common.Address
}

func (c *feedContract) WatchLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	return c.feed.Subscribe(sink), nil
}

func (c *feedContract) ParseLog(log types.Log) (voting.Log, error) {
	idx := int(log.Topics[0][31])
	if idx >= len(c.decoded) {
		return nil, voting.ErrUnknownLog
	}
	return c.decoded[idx], nil
}

func (c *feedContract) Sender(context.Context, types.Log) (common.Address, error) {
	return c.sender, nil
}

func logAt(idx byte) types.Log {
	var topic common.Hash
	topic[31] = idx
	return types.Log{Topics: []common.Hash{topic}}
}

func next(t *testing.T, b *Bridge) Event {
	t.Helper()
	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered")
		return nil
	}
}

func TestNormalizeNotification(t *testing.T) {
	ev, err := NormalizeNotification(wallet.Notification{Kind: wallet.ChainChanged, ChainID: "0x539"})
	require.NoError(t, err)
	require.Equal(t, NetworkChanged{NetworkID: 1337}, ev)

	ev, err = NormalizeNotification(wallet.Notification{Kind: wallet.AccountsChanged})
	require.NoError(t, err)
	require.Equal(t, AccountChanged{Address: chain.DefaultAddress}, ev)

	ev, err = NormalizeNotification(wallet.Notification{
		Kind:     wallet.AccountsChanged,
		Accounts: []string{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x0000000000000000000000000000000000000001"},
	})
	require.NoError(t, err)
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", ev.(AccountChanged).Address.Hex())

	_, err = NormalizeNotification(wallet.Notification{Kind: wallet.ChainChanged, ChainID: "main"})
	require.Error(t, err)
	_, err = NormalizeNotification(wallet.Notification{Kind: "disconnect"})
	require.Error(t, err)
}

func TestBridgeForwardsContractLogsInOrder(t *testing.T) {
	by := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	voter := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	src := &feedContract{
		sender: by,
		decoded: []voting.Log{
			voting.WorkflowStatusChangeLog{Previous: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted},
			voting.VoterRegisteredLog{Voter: voter},
			voting.ProposalRegisteredLog{ProposalID: 3},
			voting.VotedLog{Voter: voter, ProposalID: 3},
		},
	}
	metrics := observability.NewSessionMetrics(prometheus.NewRegistry())
	b := NewBridge(Config{Metrics: metrics})
	defer b.Close()

	sub, err := b.SubscribeContract(context.Background(), src)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := byte(0); i < 4; i++ {
		src.feed.Send(logAt(i))
	}
	require.Equal(t, PhaseChanged{Old: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted}, next(t, b))
	require.Equal(t, VoterRegistered{Voter: voter, By: by}, next(t, b))
	require.Equal(t, ProposalRegistered{Index: 3, By: by}, next(t, b))
	require.Equal(t, Voted{Voter: voter, ProposalID: 3}, next(t, b))
}

func TestBridgeSkipsUndecodableAndRemovedLogs(t *testing.T) {
	src := &feedContract{decoded: []voting.Log{voting.VotedLog{ProposalID: 1}}}
	b := NewBridge(Config{})
	defer b.Close()
	_, err := b.SubscribeContract(context.Background(), src)
	require.NoError(t, err)

	removed := logAt(0)
	removed.Removed = true
	src.feed.Send(removed)
	src.feed.Send(logAt(9))
	src.feed.Send(logAt(0))
	require.Equal(t, Voted{ProposalID: 1}, next(t, b))
}

func TestBridgeRejectsDoubleSubscribe(t *testing.T) {
	w := &feedWallet{}
	b := NewBridge(Config{})
	defer b.Close()

	first, err := b.SubscribeProvider(w)
	require.NoError(t, err)
	_, err = b.SubscribeProvider(w)
	require.True(t, errors.Is(err, ErrAlreadySubscribed))

	first.Unsubscribe()
	provider, _ := b.Active()
	require.False(t, provider)

	second, err := b.SubscribeProvider(w)
	require.NoError(t, err)
	second.Unsubscribe()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	w := &feedWallet{}
	b := NewBridge(Config{Buffer: 4})
	defer b.Close()

	sub, err := b.SubscribeProvider(w)
	require.NoError(t, err)
	w.feed.Send(wallet.Notification{Kind: wallet.ChainChanged, ChainID: "0x1"})
	require.Equal(t, NetworkChanged{NetworkID: 1}, next(t, b))

	sub.Unsubscribe()
	sub.Unsubscribe()
	<-sub.Done()
	require.Equal(t, 0, w.feed.Send(wallet.Notification{Kind: wallet.ChainChanged, ChainID: "0x2"}))
	select {
	case ev := <-b.Events():
		t.Fatalf("event after unsubscribe: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedBridgeRefusesSubscriptions(t *testing.T) {
	b := NewBridge(Config{})
	b.Close()
	b.Close()
	_, err := b.SubscribeProvider(&feedWallet{})
	require.ErrorIs(t, err, ErrBridgeClosed)
	_, err = b.SubscribeContract(context.Background(), &feedContract{})
	require.ErrorIs(t, err, ErrBridgeClosed)
	select {
	case <-b.Done():
	default:
		t.Fatalf("done not closed")
	}
}
