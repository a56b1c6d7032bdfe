package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"votesync/chain"
	"votesync/events"
	"votesync/observability"
	"votesync/session"
	"votesync/session/sessiontest"
	"votesync/storage"
	"votesync/store"
	"votesync/voting"
	"votesync/wallet"
)

const expectedNetwork = 1337

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	admin        = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	voterAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type harness struct {
	store    *store.Store
	mgr      *session.Manager
	provider *sessiontest.Provider
	contract *sessiontest.Contract
	ledger   store.AddressLedger
	notices  chan store.Notice
}

type harnessOpts struct {
	network uint64
	dial    wallet.Dialer
	ledger  store.AddressLedger
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.network == 0 {
		opts.network = expectedNetwork
	}
	provider := sessiontest.NewProvider(opts.network, admin, voterAddr)
	contract := sessiontest.NewContract(contractAddr, admin)
	contract.SetProposals(voting.Proposal{ID: 0, Description: "GENESIS"})
	dial := opts.dial
	if dial == nil {
		dial = provider.Dialer()
	}
	ledger := opts.ledger
	if ledger == nil {
		ledger = storage.NewMemLedger()
	}
	metrics := observability.NewSessionMetrics(prometheus.NewRegistry())
	bridge := events.NewBridge(events.Config{Metrics: metrics})
	mgr, err := session.New(session.Config{
		Guard:           chain.NewGuard(expectedNetwork),
		Dial:            dial,
		ContractAddress: contractAddr,
		Bind:            contract.Binder(),
		Bridge:          bridge,
		Metrics:         metrics,
	})
	require.NoError(t, err)
	st, err := store.New(store.Config{Manager: mgr, Bridge: bridge, Ledger: ledger, Metrics: metrics})
	require.NoError(t, err)

	notices := make(chan store.Notice, 64)
	st.SubscribeNotices(notices)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		st.Close()
		mgr.Close()
		bridge.Close()
	})
	return &harness{store: st, mgr: mgr, provider: provider, contract: contract, ledger: ledger, notices: notices}
}

func (h *harness) eventually(t *testing.T, cond func(store.Session) bool, msg string) store.Session {
	t.Helper()
	var last store.Session
	require.Eventually(t, func() bool {
		last = h.store.Snapshot()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond, msg)
	return last
}

func (h *harness) waitNotice(t *testing.T, kind string) store.Notice {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-h.notices:
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notice", kind)
		}
	}
}

func TestBootReconnectsLastUsedAddress(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), admin, time.Now()))
	h := newHarness(t, harnessOpts{ledger: ledger})

	require.True(t, h.store.Snapshot().Loading)
	require.NoError(t, h.store.Boot(context.Background()))

	s := h.store.Snapshot()
	require.True(t, s.Connected)
	require.Equal(t, admin, s.Address)
	require.False(t, s.Loading)
	require.False(t, s.Degraded)
	require.True(t, s.NetworkValid)
	require.EqualValues(t, expectedNetwork, s.NetworkID)
	require.True(t, s.IsAdmin)
	require.True(t, s.PhaseKnown)
	require.Equal(t, voting.RegisteringVoters, s.Phase)
	require.Len(t, s.Proposals, 1)
}

func TestBootSelectsHintThatIsNotActive(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), voterAddr, time.Now()))
	h := newHarness(t, harnessOpts{ledger: ledger})
	require.NoError(t, h.store.Boot(context.Background()))

	s := h.store.Snapshot()
	require.Equal(t, voterAddr, s.Address)
	require.False(t, s.IsAdmin)
	accounts, err := h.mgr.Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, voterAddr, accounts[0])
}

func TestBootWithoutHintStaysDisconnected(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	s := h.store.Snapshot()
	require.False(t, s.Connected)
	require.Equal(t, chain.DefaultAddress, s.Address)
	require.False(t, s.IsAdmin)
	require.True(t, s.NetworkValid)
	require.False(t, s.Loading)
}

func TestBootWithoutWallet(t *testing.T) {
	h := newHarness(t, harnessOpts{dial: sessiontest.NoWallet})
	err := h.store.Boot(context.Background())
	require.ErrorIs(t, err, wallet.ErrNoWallet)
	s := h.store.Snapshot()
	require.False(t, s.Loading)
	require.False(t, s.Connected)
	h.waitNotice(t, "no_wallet")
}

func TestBootOnWrongNetwork(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), admin, time.Now()))
	h := newHarness(t, harnessOpts{network: 1, ledger: ledger})
	require.NoError(t, h.store.Boot(context.Background()))

	s := h.store.Snapshot()
	require.True(t, s.Connected)
	require.False(t, s.NetworkValid)
	require.False(t, s.IsAdmin)
	require.False(t, s.Degraded)
	require.False(t, s.Loading)
	require.Equal(t, session.BadNetwork, h.mgr.State())
	h.waitNotice(t, "bad_network")
}

func TestBootDegradesOnReadFailure(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), admin, time.Now()))
	h := newHarness(t, harnessOpts{ledger: ledger})
	h.contract.FailReads(errors.New("rpc timeout"))

	require.Error(t, h.store.Boot(context.Background()))
	s := h.store.Snapshot()
	require.True(t, s.Degraded)
	require.False(t, s.Loading)
	require.False(t, s.IsAdmin)
	require.True(t, s.Connected)
}

func TestNetworkFlipRoundTrip(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), admin, time.Now()))
	h := newHarness(t, harnessOpts{ledger: ledger})
	require.NoError(t, h.store.Boot(context.Background()))
	require.True(t, h.store.Snapshot().IsAdmin)
	readsBefore := h.contract.OwnerReads()

	h.provider.SwitchChain(5)
	h.eventually(t, func(s store.Session) bool {
		return s.NetworkID == 5 && !s.NetworkValid
	}, "network switch not applied")
	s := h.store.Snapshot()
	require.False(t, s.IsAdmin)
	require.False(t, h.mgr.Bound())
	require.Zero(t, h.contract.Emit(voting.VotedLog{Voter: admin}, admin), "contract listeners survived the switch")

	h.provider.SwitchChain(expectedNetwork)
	h.eventually(t, func(s store.Session) bool {
		return s.NetworkValid && s.IsAdmin && !s.Loading
	}, "binding not restored")
	require.True(t, h.mgr.Bound())
	require.Equal(t, 2, h.contract.Binds())
	require.Greater(t, h.contract.OwnerReads(), readsBefore)
}

func TestPhaseEventsAppliedInOrder(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))

	snaps := make(chan store.Session, 64)
	sub := h.store.SubscribeSnapshots(snaps)
	defer sub.Unsubscribe()

	require.Equal(t, 1, h.contract.Emit(voting.WorkflowStatusChangeLog{
		Previous: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted,
	}, admin))
	require.Equal(t, 1, h.contract.Emit(voting.WorkflowStatusChangeLog{
		Previous: voting.ProposalsRegistrationStarted, New: voting.ProposalsRegistrationEnded,
	}, admin))

	var seen []voting.Phase
	deadline := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != voting.ProposalsRegistrationEnded {
		select {
		case s := <-snaps:
			if len(seen) == 0 || seen[len(seen)-1] != s.Phase {
				seen = append(seen, s.Phase)
			}
		case <-deadline:
			t.Fatalf("phases seen %v", seen)
		}
	}
	require.Equal(t, []voting.Phase{voting.ProposalsRegistrationStarted, voting.ProposalsRegistrationEnded}, seen)
	require.Equal(t, voting.ProposalsRegistrationEnded, h.store.Snapshot().Phase)
}

func TestConnectThenDisconnect(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	ctx := context.Background()

	s, err := h.store.ConnectWallet(ctx)
	require.NoError(t, err)
	require.True(t, s.Connected)
	require.Equal(t, admin, s.Address)
	require.True(t, s.IsAdmin)
	got, err := h.ledger.MostRecentlyUsed(ctx)
	require.NoError(t, err)
	require.Equal(t, admin, got)

	s, err = h.store.DisconnectWallet(ctx)
	require.NoError(t, err)
	require.False(t, s.Connected)
	require.Equal(t, chain.DefaultAddress, s.Address)
	require.False(t, s.IsAdmin)
	got, err = h.ledger.MostRecentlyUsed(ctx)
	require.NoError(t, err)
	require.Equal(t, chain.DefaultAddress, got)
}

func TestWritesRefusedAfterDisconnect(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()
	require.NoError(t, h.store.Boot(ctx))
	_, err := h.store.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.store.DisconnectWallet(ctx)
	require.NoError(t, err)

	_, err = h.store.AdvancePhase(ctx, voting.ProposalsRegistrationStarted)
	require.ErrorIs(t, err, session.ErrNoSigner)
	_, err = h.store.AddVoter(ctx, voterAddr.Hex())
	require.ErrorIs(t, err, session.ErrNoSigner)
	require.Empty(t, h.store.Snapshot().Pending)
	require.Empty(t, h.contract.Calls())

	// Reconnecting restores the signer.
	_, err = h.store.ConnectWallet(ctx)
	require.NoError(t, err)
	pending, err := h.store.AdvancePhase(ctx, voting.ProposalsRegistrationStarted)
	require.NoError(t, err)
	require.Equal(t, admin, pending.Subject)
	require.Len(t, h.contract.Calls(), 1)
}

func TestConnectWithoutWallet(t *testing.T) {
	h := newHarness(t, harnessOpts{dial: sessiontest.NoWallet})
	_, err := h.store.ConnectWallet(context.Background())
	require.ErrorIs(t, err, wallet.ErrNoWallet)
}

func TestEmptyProposalRejectedLocally(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	_, err := h.store.ConnectWallet(context.Background())
	require.NoError(t, err)

	_, err = h.store.AddProposal(context.Background(), "")
	require.ErrorIs(t, err, session.ErrEmptyProposal)
	require.Empty(t, h.store.Snapshot().Pending)
	require.Empty(t, h.contract.Calls())
}

func TestPendingClearedOnlyByOwnEvent(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	ctx := context.Background()
	_, err := h.store.ConnectWallet(ctx)
	require.NoError(t, err)

	pending, err := h.store.AddVoter(ctx, voterAddr.Hex())
	require.NoError(t, err)
	require.NotEmpty(t, pending.ID)
	require.Equal(t, admin, pending.Subject)
	require.Contains(t, h.store.Snapshot().Pending, store.PendingVoter)

	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	h.contract.Emit(voting.VoterRegisteredLog{Voter: other}, other)
	h.contract.Emit(voting.ProposalRegisteredLog{ProposalID: 1}, other)
	h.contract.SetProposals(
		voting.Proposal{ID: 0, Description: "GENESIS"},
		voting.Proposal{ID: 1, Description: "more coffee"},
	)
	h.contract.Emit(voting.VotedLog{Voter: other, ProposalID: 1}, other)
	h.eventually(t, func(s store.Session) bool { return len(s.Proposals) == 2 }, "proposals not refreshed")
	require.Contains(t, h.store.Snapshot().Pending, store.PendingVoter)

	h.contract.Emit(voting.VoterRegisteredLog{Voter: voterAddr}, admin)
	h.eventually(t, func(s store.Session) bool {
		_, ok := s.Pending[store.PendingVoter]
		return !ok
	}, "pending voter not cleared")
	h.waitNotice(t, string(events.KindVoterRegistered))
}

func TestPhaseChangeClosesPendingTransition(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	ctx := context.Background()
	_, err := h.store.ConnectWallet(ctx)
	require.NoError(t, err)

	_, err = h.store.AdvancePhase(ctx, voting.ProposalsRegistrationStarted)
	require.NoError(t, err)
	require.Contains(t, h.store.Snapshot().Pending, store.PendingPhase)

	_, err = h.store.AdvancePhase(ctx, voting.VotesTallied)
	require.ErrorIs(t, err, session.ErrInvalidPhaseTransition)

	h.contract.Emit(voting.WorkflowStatusChangeLog{
		Previous: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted,
	}, admin)
	s := h.eventually(t, func(s store.Session) bool {
		_, ok := s.Pending[store.PendingPhase]
		return !ok
	}, "pending phase not cleared")
	require.Equal(t, voting.ProposalsRegistrationStarted, s.Phase)
}

type failingLedger struct {
	*storage.MemLedger
	fail bool
}

func (l *failingLedger) Put(ctx context.Context, addr common.Address, at time.Time) error {
	if l.fail {
		return errors.New("disk full")
	}
	return l.MemLedger.Put(ctx, addr, at)
}

func TestHandlerErrorDoesNotStopLoop(t *testing.T) {
	ledger := &failingLedger{MemLedger: storage.NewMemLedger(), fail: true}
	h := newHarness(t, harnessOpts{ledger: ledger})
	require.NoError(t, h.store.Boot(context.Background()))

	h.provider.SwitchAccounts(voterAddr, admin)
	n := h.waitNotice(t, string(events.KindAccountChanged))
	require.Equal(t, store.NoticeError, n.Level)
	require.Contains(t, n.Message, "disk full")
	require.Equal(t, voterAddr, h.store.Snapshot().Address)

	h.contract.Emit(voting.WorkflowStatusChangeLog{
		Previous: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted,
	}, admin)
	h.eventually(t, func(s store.Session) bool {
		return s.Phase == voting.ProposalsRegistrationStarted
	}, "loop stopped after handler error")
}

func TestAccountChangedToNoneDisconnects(t *testing.T) {
	ledger := storage.NewMemLedger()
	require.NoError(t, ledger.Put(context.Background(), admin, time.Now()))
	h := newHarness(t, harnessOpts{ledger: ledger})
	require.NoError(t, h.store.Boot(context.Background()))

	h.provider.SwitchAccounts()
	s := h.eventually(t, func(s store.Session) bool { return !s.Connected }, "still connected")
	require.Equal(t, chain.DefaultAddress, s.Address)
	require.False(t, s.IsAdmin)
}

func TestClosedStoreIgnoresLateResults(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	_, err := h.store.ConnectWallet(context.Background())
	require.NoError(t, err)

	h.store.Close()
	before := h.store.Snapshot()
	_, err = h.store.AddProposal(context.Background(), "late")
	require.NoError(t, err)
	after := h.store.Snapshot()
	require.Equal(t, before.Pending, after.Pending)
}

func TestAppliedEventsFollowHandling(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.store.Boot(context.Background()))
	applied := make(chan store.Applied, 4)
	sub := h.store.SubscribeEvents(applied)
	defer sub.Unsubscribe()

	h.contract.SetPhase(voting.ProposalsRegistrationStarted)
	h.contract.Emit(voting.WorkflowStatusChangeLog{
		Previous: voting.RegisteringVoters, New: voting.ProposalsRegistrationStarted,
	}, admin)

	select {
	case a := <-applied:
		changed, ok := a.Event.(events.PhaseChanged)
		require.True(t, ok, "got %T", a.Event)
		require.Equal(t, voting.ProposalsRegistrationStarted, changed.New)
		require.Equal(t, voting.ProposalsRegistrationStarted, h.store.Snapshot().Phase)
	case <-time.After(2 * time.Second):
		t.Fatal("no applied event")
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.store.Close()
	sub := h.store.SubscribeSnapshots(make(chan store.Session, 1))
	select {
	case err := <-sub.Err():
		require.ErrorIs(t, err, session.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("subscription after close did not fail")
	}
}
