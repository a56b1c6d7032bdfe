package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"votesync/chain"
	"votesync/events"
)

// dispatch applies one event. Errors and panics become notices so the loop
// keeps going.
func (s *Store) dispatch(ctx context.Context, ev events.Event) {
	kind := string(ev.Kind())
	defer func() {
		if r := recover(); r != nil {
			s.fail(kind, fmt.Errorf("panic handling %s: %v", kind, r))
		}
	}()
	s.logger.Debug("applying event", slog.String("event", kind))

	var err error
	switch e := ev.(type) {
	case events.NetworkChanged:
		err = s.onNetworkChanged(ctx, e)
	case events.AccountChanged:
		err = s.applyAccount(ctx, e.Address)
	case events.PhaseChanged:
		s.onPhaseChanged(ctx, e)
	case events.VoterRegistered:
		s.onVoterRegistered(e)
	case events.ProposalRegistered:
		s.onProposalRegistered(ctx, e)
	case events.Voted:
		s.onVoted(ctx, e)
	default:
		err = fmt.Errorf("unhandled event %T", ev)
	}
	if err != nil {
		s.fail(kind, err)
	}
}

// onNetworkChanged drops the binding on the wrong network and rebinds and
// re-reads everything when the expected network comes back.
func (s *Store) onNetworkChanged(ctx context.Context, e events.NetworkChanged) error {
	if !s.mgr.ObserveNetwork(e.NetworkID) {
		s.update(func(st *Session) {
			st.NetworkID = e.NetworkID
			st.NetworkValid = false
			st.PhaseKnown = false
			st.Proposals = nil
		})
		s.notify(NoticeError, "bad_network", badNetworkMessage(s.mgr.Guard().Expected()))
		return nil
	}
	if s.mgr.Bound() {
		s.update(func(st *Session) {
			st.NetworkID = e.NetworkID
			st.NetworkValid = true
		})
		return nil
	}

	s.update(func(st *Session) {
		st.NetworkID = e.NetworkID
		st.Loading = true
	})
	err := s.resync(ctx)
	s.update(func(st *Session) {
		st.Degraded = err != nil
		st.Loading = false
	})
	return err
}

// applyAccount makes addr the session address and re-derives admin rights.
// Non-default addresses are recorded in the ledger.
func (s *Store) applyAccount(ctx context.Context, addr common.Address) error {
	if chain.IsDefault(addr) {
		s.update(func(st *Session) {
			st.Address = chain.DefaultAddress
			st.Connected = false
			st.IsAdmin = false
		})
		return nil
	}
	isAdmin, err := s.mgr.IsOwner(ctx, addr)
	s.update(func(st *Session) {
		st.Address = addr
		st.Connected = true
		st.IsAdmin = isAdmin && err == nil
	})
	if putErr := s.ledger.Put(ctx, addr, s.clock()); putErr != nil {
		err = errors.Join(err, fmt.Errorf("record address: %w", putErr))
	}
	return err
}

// onPhaseChanged trusts the emitted phase over any locally computed one.
func (s *Store) onPhaseChanged(ctx context.Context, e events.PhaseChanged) {
	proposals, loaded := s.loadProposals(ctx)
	s.update(func(st *Session) {
		st.Phase = e.New
		st.PhaseKnown = true
		delete(st.Pending, PendingPhase)
		if loaded {
			st.Proposals = proposals
		}
	})
	s.notify(NoticeInfo, string(events.KindPhaseChanged),
		fmt.Sprintf("Status changed from %q to %q", e.Old.String(), e.New.String()))
}

func (s *Store) onVoterRegistered(e events.VoterRegistered) {
	if s.settle(PendingVoter, e.By) {
		s.notify(NoticeInfo, string(events.KindVoterRegistered),
			fmt.Sprintf("Voter %s added", e.Voter.Hex()))
	}
}

func (s *Store) onProposalRegistered(ctx context.Context, e events.ProposalRegistered) {
	s.refreshProposals(ctx)
	if s.settle(PendingProposal, e.By) {
		s.notify(NoticeInfo, string(events.KindProposalRegistered),
			fmt.Sprintf("Proposal %d submitted", e.Index))
	}
}

func (s *Store) onVoted(ctx context.Context, e events.Voted) {
	s.refreshProposals(ctx)
	if s.settle(PendingVote, e.Voter) {
		s.notify(NoticeInfo, string(events.KindVoted),
			fmt.Sprintf("Vote for proposal %d saved", e.ProposalID))
	}
}

// settle clears the pending indicator of kind when subject is the session
// address. It reports whether the event acknowledged our own action.
func (s *Store) settle(kind PendingKind, subject common.Address) bool {
	mine := false
	s.update(func(st *Session) {
		if chain.IsDefault(st.Address) || st.Address != subject {
			return
		}
		mine = true
		delete(st.Pending, kind)
	})
	return mine
}

func (s *Store) refreshProposals(ctx context.Context) {
	proposals, loaded := s.loadProposals(ctx)
	if !loaded {
		return
	}
	s.update(func(st *Session) { st.Proposals = proposals })
}
