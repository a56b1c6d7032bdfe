package voting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrUnknownLog is returned by ParseLog for logs the contract does not emit.
var ErrUnknownLog = errors.New("unknown contract log")

// Backend is the node access a Contract needs: calls, transactions, log
// filtering and sender recovery for emitted logs.
type Backend interface {
	bind.ContractBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
}

// Contract is a typed handle to one deployed Voting contract.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend Backend
	topics  map[common.Hash]string

	pollInterval time.Duration
}

// Option tunes a Contract.
type Option func(*Contract)

// WithLogPollInterval sets how often logs are polled when the node cannot
// push them (plain HTTP endpoints). Non-positive values keep the default.
func WithLogPollInterval(d time.Duration) Option {
	return func(c *Contract) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewContract binds the Voting interface at address on backend.
func NewContract(address common.Address, backend Backend, opts ...Option) (*Contract, error) {
	if backend == nil {
		return nil, fmt.Errorf("contract backend required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("contract address required")
	}
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse voting abi: %w", err)
	}
	topics := make(map[common.Hash]string, 4)
	for _, name := range []string{EventWorkflowStatusChange, EventVoterRegistered, EventProposalRegistered, EventVoted} {
		topics[parsed.Events[name].ID] = name
	}
	c := &Contract{
		address:      address,
		abi:          parsed,
		bound:        bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:      backend,
		topics:       topics,
		pollInterval: DefaultLogPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, classifyCallError(method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

// Owner returns the contract administrator.
func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// WorkflowStatus returns the current workflow phase.
func (c *Contract) WorkflowStatus(ctx context.Context) (Phase, error) {
	out, err := c.call(ctx, "workflowStatus")
	if err != nil {
		return 0, err
	}
	raw := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return ParsePhase(uint64(raw))
}

// Proposals returns every registered proposal, ids assigned by position.
func (c *Contract) Proposals(ctx context.Context) ([]Proposal, error) {
	out, err := c.call(ctx, "getProposals")
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]proposalTuple)).(*[]proposalTuple)
	proposals := make([]Proposal, 0, len(tuples))
	for i, tuple := range tuples {
		proposals = append(proposals, tuple.toProposal(uint64(i)))
	}
	return proposals, nil
}

// Proposal returns one proposal by id.
func (c *Contract) Proposal(ctx context.Context, id uint64) (Proposal, error) {
	out, err := c.call(ctx, "getOneProposal", new(big.Int).SetUint64(id))
	if err != nil {
		return Proposal{}, err
	}
	tuple := *abi.ConvertType(out[0], new(proposalTuple)).(*proposalTuple)
	return tuple.toProposal(id), nil
}

// Voter returns the voter record for addr. Callers must be registered voters
// for the contract to answer.
func (c *Contract) Voter(ctx context.Context, addr common.Address) (Voter, error) {
	out, err := c.call(ctx, "getVoter", addr)
	if err != nil {
		return Voter{}, err
	}
	tuple := *abi.ConvertType(out[0], new(voterTuple)).(*voterTuple)
	return tuple.toVoter(), nil
}

// WinningProposalID returns the tallied winner's id.
func (c *Contract) WinningProposalID(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "winningProposalID")
	if err != nil {
		return 0, err
	}
	return bigToUint64(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

// Transact submits method and returns as soon as the node accepts the
// transaction. It does not wait for inclusion.
func (c *Contract) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("%s: transact opts required", method)
	}
	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, classifyCallError(method, err)
	}
	return tx, nil
}

// WatchLogs streams the four contract event kinds, in node order, into sink.
// Nodes that cannot push notifications are polled with eth_getLogs instead.
func (c *Contract) WatchLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	ids := make([]common.Hash, 0, len(c.topics))
	for _, name := range []string{EventWorkflowStatusChange, EventVoterRegistered, EventProposalRegistered, EventVoted} {
		ids = append(ids, c.abi.Events[name].ID)
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{ids},
	}
	sub, err := c.backend.SubscribeFilterLogs(ctx, query, sink)
	if errors.Is(err, rpc.ErrNotificationsUnsupported) {
		return c.pollLogs(ctx, query, sink)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe contract logs: %w", err)
	}
	return sub, nil
}

// ParseLog decodes a raw log emitted by the contract.
func (c *Contract) ParseLog(log types.Log) (Log, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownLog
	}
	name, ok := c.topics[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s", ErrUnknownLog, log.Topics[0].Hex())
	}
	switch name {
	case EventWorkflowStatusChange:
		var out struct {
			PreviousStatus uint8
			NewStatus      uint8
		}
		if err := c.bound.UnpackLog(&out, name, log); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		prev, err := ParsePhase(uint64(out.PreviousStatus))
		if err != nil {
			return nil, err
		}
		next, err := ParsePhase(uint64(out.NewStatus))
		if err != nil {
			return nil, err
		}
		return WorkflowStatusChangeLog{Previous: prev, New: next, Raw: log}, nil
	case EventVoterRegistered:
		var out struct {
			VoterAddress common.Address
		}
		if err := c.bound.UnpackLog(&out, name, log); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		return VoterRegisteredLog{Voter: out.VoterAddress, Raw: log}, nil
	case EventProposalRegistered:
		var out struct {
			ProposalId *big.Int
		}
		if err := c.bound.UnpackLog(&out, name, log); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		return ProposalRegisteredLog{ProposalID: bigToUint64(out.ProposalId), Raw: log}, nil
	default:
		var out struct {
			Voter      common.Address
			ProposalId *big.Int
		}
		if err := c.bound.UnpackLog(&out, name, log); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		return VotedLog{Voter: out.Voter, ProposalID: bigToUint64(out.ProposalId), Raw: log}, nil
	}
}

// Sender recovers the account whose transaction emitted log.
func (c *Contract) Sender(ctx context.Context, log types.Log) (common.Address, error) {
	tx, _, err := c.backend.TransactionByHash(ctx, log.TxHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("load transaction %s: %w", log.TxHash.Hex(), err)
	}
	sender, err := c.backend.TransactionSender(ctx, tx, log.BlockHash, log.TxIndex)
	if err == nil {
		return sender, nil
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	sender, fallbackErr := types.Sender(signer, tx)
	if fallbackErr != nil {
		return common.Address{}, fmt.Errorf("recover sender of %s: %w", log.TxHash.Hex(), errors.Join(err, fallbackErr))
	}
	return sender, nil
}
