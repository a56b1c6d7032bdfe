package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"votesync/chain"
	"votesync/session"
	"votesync/voting"
	"votesync/wallet"
)

// Boot opens the wallet, reconnects the most recently used address when the
// wallet still exposes it, binds the contract and reads admin rights, phase
// and proposals. Loading is cleared last. Failures after the wallet opened
// leave the session usable and set Degraded; the error is still returned.
func (s *Store) Boot(ctx context.Context) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	s.update(func(st *Session) { st.Loading = true })

	hint, err := s.ledger.MostRecentlyUsed(ctx)
	if err != nil {
		s.logger.Warn("read address ledger", slog.Any("error", err))
		hint = chain.DefaultAddress
	}

	if err := s.mgr.OpenConnection(ctx); err != nil {
		if errors.Is(err, wallet.ErrNoWallet) {
			s.metrics.RecordBoot("no_wallet")
			s.notify(NoticeError, "no_wallet", "no wallet available")
			s.update(func(st *Session) { st.Loading = false })
			return err
		}
		s.metrics.RecordBoot("degraded")
		s.fail("boot", err)
		s.update(func(st *Session) {
			st.Degraded = true
			st.Loading = false
		})
		return err
	}

	address := chain.DefaultAddress
	if !chain.IsDefault(hint) {
		address, err = s.reconnect(ctx, hint)
		if err != nil {
			s.logger.Warn("auto reconnect skipped", slog.String("address", hint.Hex()), slog.Any("error", err))
			address = chain.DefaultAddress
		}
	}
	s.update(func(st *Session) {
		st.Address = address
		st.Connected = !chain.IsDefault(address)
	})

	bootErr := s.resync(ctx)
	if bootErr != nil {
		s.metrics.RecordBoot("degraded")
		s.fail("boot", bootErr)
	} else {
		s.metrics.RecordBoot("ready")
	}
	s.update(func(st *Session) {
		st.Degraded = bootErr != nil
		st.Loading = false
	})
	return bootErr
}

// reconnect checks that the wallet still exposes hint without prompting and
// makes it the active account.
func (s *Store) reconnect(ctx context.Context, hint common.Address) (common.Address, error) {
	accounts, err := s.mgr.Accounts(ctx)
	if err != nil {
		return chain.DefaultAddress, err
	}
	for i, acct := range accounts {
		if acct != hint {
			continue
		}
		if i > 0 {
			if err := s.mgr.SelectAccount(hint); err != nil {
				return chain.DefaultAddress, err
			}
		}
		return hint, nil
	}
	return chain.DefaultAddress, fmt.Errorf("address %s not exposed by wallet", hint.Hex())
}

// resync binds the contract if the network allows it and refreshes every
// contract-derived field. The wrong network is not an error here; it is
// reflected in the session.
func (s *Store) resync(ctx context.Context) error {
	id, err := s.mgr.AttachContract(ctx)
	switch {
	case errors.Is(err, session.ErrBadNetwork):
		s.update(func(st *Session) {
			st.NetworkID = id
			st.NetworkValid = false
			st.PhaseKnown = false
			st.Proposals = nil
		})
		s.notify(NoticeError, "bad_network", badNetworkMessage(s.mgr.Guard().Expected()))
		return nil
	case err != nil:
		return err
	}
	s.update(func(st *Session) {
		st.NetworkID = id
		st.NetworkValid = true
	})
	return s.refresh(ctx)
}

// refresh re-reads admin rights, phase and proposals from the contract.
func (s *Store) refresh(ctx context.Context) error {
	address := s.current().Address
	isAdmin, ownerErr := s.mgr.IsOwner(ctx, address)
	phase, known, phaseErr := s.mgr.CurrentPhase(ctx)
	proposals, loaded := s.loadProposals(ctx)
	s.update(func(st *Session) {
		st.IsAdmin = isAdmin && ownerErr == nil
		if phaseErr == nil {
			st.Phase, st.PhaseKnown = phase, known
		}
		if loaded {
			st.Proposals = proposals
		}
	})
	return errors.Join(ownerErr, phaseErr)
}

// loadProposals reads the proposal list. The contract restricts it to
// registered voters, so failures only keep the cached list.
func (s *Store) loadProposals(ctx context.Context) ([]voting.Proposal, bool) {
	if !s.mgr.Bound() {
		return nil, false
	}
	proposals, err := s.mgr.Proposals(ctx)
	if err != nil {
		s.logger.Debug("proposal list unavailable", slog.Any("error", err))
		return nil, false
	}
	return proposals, true
}

func badNetworkMessage(expected uint64) string {
	if name, ok := chain.NetworkName(expected); ok {
		return fmt.Sprintf("switch your wallet to %s (%d)", name, expected)
	}
	return fmt.Sprintf("switch your wallet to network %d", expected)
}
