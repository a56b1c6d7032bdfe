package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"votesync/chain"
	"votesync/voting"
)

// IsOwner reports whether addr owns the contract. It returns false, without
// error, for the default address and when no binding exists.
func (m *Manager) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	if chain.IsDefault(addr) {
		return false, nil
	}
	contract, err := m.binding()
	if err != nil {
		return false, nil
	}
	defer m.metrics.ObserveRead("owner", time.Now())
	owner, err := contract.Owner(ctx)
	if err != nil {
		return false, fmt.Errorf("read owner: %w", err)
	}
	return owner == addr, nil
}

// CurrentPhase reads the contract's workflow phase. ok is false when no
// binding exists; the phase is then unknown, not RegisteringVoters.
func (m *Manager) CurrentPhase(ctx context.Context) (phase voting.Phase, ok bool, err error) {
	contract, berr := m.binding()
	if berr != nil {
		return 0, false, nil
	}
	defer m.metrics.ObserveRead("workflowStatus", time.Now())
	phase, err = contract.WorkflowStatus(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read phase: %w", err)
	}
	return phase, true, nil
}

// Proposals lists every proposal.
func (m *Manager) Proposals(ctx context.Context) ([]voting.Proposal, error) {
	contract, err := m.binding()
	if err != nil {
		return nil, err
	}
	defer m.metrics.ObserveRead("getProposals", time.Now())
	return contract.Proposals(ctx)
}

// Proposal reads one proposal.
func (m *Manager) Proposal(ctx context.Context, id uint64) (voting.Proposal, error) {
	contract, err := m.binding()
	if err != nil {
		return voting.Proposal{}, err
	}
	defer m.metrics.ObserveRead("getOneProposal", time.Now())
	return contract.Proposal(ctx, id)
}

// Voter reads the voter record of addr.
func (m *Manager) Voter(ctx context.Context, addr common.Address) (voting.Voter, error) {
	contract, err := m.binding()
	if err != nil {
		return voting.Voter{}, err
	}
	defer m.metrics.ObserveRead("getVoter", time.Now())
	return contract.Voter(ctx, addr)
}

// Winner returns the winning proposal. The contract only reports a winner
// once votes are tallied; earlier it returns proposal 0.
func (m *Manager) Winner(ctx context.Context) (voting.Proposal, error) {
	contract, err := m.binding()
	if err != nil {
		return voting.Proposal{}, err
	}
	defer m.metrics.ObserveRead("winningProposalID", time.Now())
	id, err := contract.WinningProposalID(ctx)
	if err != nil {
		return voting.Proposal{}, fmt.Errorf("read winner: %w", err)
	}
	return contract.Proposal(ctx, id)
}
