package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"votesync/chain"
	"votesync/session"
	"votesync/voting"
	"votesync/wallet"
)

// ConnectWallet asks the wallet for account access and applies the first
// account as an AccountChanged event would. The wallet is opened and the
// contract bound first if that has not happened yet.
func (s *Store) ConnectWallet(ctx context.Context) (Session, error) {
	s.serial.Lock()
	defer s.serial.Unlock()

	if _, ok := s.mgr.Provider(); !ok {
		if err := s.mgr.OpenConnection(ctx); err != nil {
			s.fail("connect_wallet", err)
			return s.current(), err
		}
		if err := s.resync(ctx); err != nil {
			s.fail("connect_wallet", err)
		}
	}
	accounts, err := s.mgr.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = wallet.ErrNoAccounts
	}
	if err != nil {
		s.fail("connect_wallet", err)
		return s.current(), err
	}
	if err := s.applyAccount(ctx, accounts[0]); err != nil {
		s.fail("connect_wallet", err)
		return s.current(), err
	}
	s.notify(NoticeInfo, "wallet_connected", fmt.Sprintf("Connected as %s", accounts[0].Hex()))
	return s.current(), nil
}

// DisconnectWallet forgets the current address and resets the session
// address. The wallet connection itself stays open.
func (s *Store) DisconnectWallet(ctx context.Context) (Session, error) {
	s.serial.Lock()
	defer s.serial.Unlock()

	address := s.current().Address
	var err error
	if !chain.IsDefault(address) {
		if err = s.ledger.Remove(ctx, address); err != nil {
			err = fmt.Errorf("forget address: %w", err)
			s.fail("disconnect_wallet", err)
		}
	}
	s.update(func(st *Session) {
		st.Address = chain.DefaultAddress
		st.Connected = false
		st.IsAdmin = false
		st.Pending = make(map[PendingKind]Pending)
	})
	return s.current(), err
}

// AdvancePhase submits the transition to target.
func (s *Store) AdvancePhase(ctx context.Context, target voting.Phase) (Pending, error) {
	return s.submit(ctx, PendingPhase, func(ctx context.Context) (*types.Transaction, error) {
		return s.mgr.SubmitPhaseTransition(ctx, target)
	})
}

// AddVoter submits a voter registration.
func (s *Store) AddVoter(ctx context.Context, address string) (Pending, error) {
	return s.submit(ctx, PendingVoter, func(ctx context.Context) (*types.Transaction, error) {
		return s.mgr.RegisterVoter(ctx, address)
	})
}

// AddProposal submits a proposal.
func (s *Store) AddProposal(ctx context.Context, description string) (Pending, error) {
	return s.submit(ctx, PendingProposal, func(ctx context.Context) (*types.Transaction, error) {
		return s.mgr.SubmitProposal(ctx, description)
	})
}

// Vote submits a vote for proposalID.
func (s *Store) Vote(ctx context.Context, proposalID uint64) (Pending, error) {
	return s.submit(ctx, PendingVote, func(ctx context.Context) (*types.Transaction, error) {
		return s.mgr.CastVote(ctx, proposalID)
	})
}

// Tally submits the vote count.
func (s *Store) Tally(ctx context.Context) (Pending, error) {
	return s.submit(ctx, PendingPhase, func(ctx context.Context) (*types.Transaction, error) {
		return s.mgr.TallyVotes(ctx)
	})
}

// submit runs write and, once the node accepted the transaction, marks kind
// as pending until its confirming event arrives. Writes need a connected
// address: the pending entry is settled by events from that address.
func (s *Store) submit(ctx context.Context, kind PendingKind, write func(context.Context) (*types.Transaction, error)) (Pending, error) {
	s.serial.Lock()
	defer s.serial.Unlock()

	if cur := s.current(); !cur.Connected || chain.IsDefault(cur.Address) {
		err := fmt.Errorf("%w: no connected account", session.ErrNoSigner)
		s.fail(string(kind), err)
		return Pending{}, err
	}
	tx, err := write(ctx)
	if err != nil {
		s.fail(string(kind), err)
		return Pending{}, err
	}
	pending := Pending{
		ID:          uuid.NewString(),
		Kind:        kind,
		TxHash:      tx.Hash(),
		Subject:     s.current().Address,
		SubmittedAt: s.clock(),
	}
	s.update(func(st *Session) { st.Pending[kind] = pending })
	s.logger.Info("awaiting confirmation",
		slog.String("pending", pending.ID),
		slog.String("kind", string(kind)),
		slog.String("tx", pending.TxHash.Hex()))
	return pending, nil
}
