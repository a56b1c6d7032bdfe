package session

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"votesync/events"
	"votesync/voting"
)

// Contract is the binding surface the manager drives. *voting.Contract
// satisfies it.
type Contract interface {
	events.LogSource

	Address() common.Address
	Owner(ctx context.Context) (common.Address, error)
	WorkflowStatus(ctx context.Context) (voting.Phase, error)
	Proposals(ctx context.Context) ([]voting.Proposal, error)
	Proposal(ctx context.Context, id uint64) (voting.Proposal, error)
	Voter(ctx context.Context, addr common.Address) (voting.Voter, error)
	WinningProposalID(ctx context.Context) (uint64, error)
	Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error)
}

// Binder builds a binding for the contract at address over backend.
type Binder func(address common.Address, backend voting.Backend) (Contract, error)

// BindVoting is the production Binder.
func BindVoting(address common.Address, backend voting.Backend) (Contract, error) {
	return BindVotingWith()(address, backend)
}

// BindVotingWith returns a production Binder that applies opts to every
// binding it makes.
func BindVotingWith(opts ...voting.Option) Binder {
	return func(address common.Address, backend voting.Backend) (Contract, error) {
		c, err := voting.NewContract(address, backend, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
