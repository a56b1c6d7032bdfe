// Package sessiontest provides in-memory wallet and contract fakes for tests
// of the session layer and its consumers.
package sessiontest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"votesync/session"
	"votesync/voting"
	"votesync/wallet"
)

// Provider is a scriptable wallet.
type Provider struct {
	feed event.Feed

	mu         sync.Mutex
	chainID    uint64
	accounts   []common.Address
	unlocked   bool
	requestErr error
	closed     int
	dials      int
}

// NewProvider returns a wallet on chainID exposing accounts, active first.
func NewProvider(chainID uint64, accounts ...common.Address) *Provider {
	return &Provider{chainID: chainID, accounts: accounts}
}

// Dialer returns a wallet.Dialer yielding p.
func (p *Provider) Dialer() wallet.Dialer {
	return func(context.Context) (wallet.Provider, error) {
		p.mu.Lock()
		p.dials++
		p.mu.Unlock()
		return p, nil
	}
}

// NoWallet is a dialer reporting that no wallet exists.
func NoWallet(context.Context) (wallet.Provider, error) { return nil, wallet.ErrNoWallet }

func (p *Provider) ChainID(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).SetUint64(p.chainID), nil
}

func (p *Provider) Accounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *Provider) RequestAccounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	if len(p.accounts) == 0 {
		return nil, wallet.ErrNoAccounts
	}
	p.unlocked = true
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *Provider) Signer(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.unlocked || len(p.accounts) == 0 {
		return nil, wallet.ErrLocked
	}
	from := p.accounts[0]
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
	}, nil
}

func (p *Provider) WatchNotifications(sink chan<- wallet.Notification) event.Subscription {
	return p.feed.Subscribe(sink)
}

func (p *Provider) Backend() voting.Backend { return nil }

func (p *Provider) Close() {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
}

// Closed reports how many times Close ran.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Unlock marks the active account as able to sign.
func (p *Provider) Unlock() {
	p.mu.Lock()
	p.unlocked = true
	p.mu.Unlock()
}

// FailRequests makes RequestAccounts return err.
func (p *Provider) FailRequests(err error) {
	p.mu.Lock()
	p.requestErr = err
	p.mu.Unlock()
}

// SwitchChain changes the network and raises chainChanged.
func (p *Provider) SwitchChain(id uint64) {
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
	p.feed.Send(wallet.Notification{Kind: wallet.ChainChanged, ChainID: hexutil.EncodeUint64(id)})
}

// SelectAccount moves addr to the front of the account list.
func (p *Provider) SelectAccount(addr common.Address) error {
	p.mu.Lock()
	idx := -1
	for i, a := range p.accounts {
		if a == addr {
			idx = i
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("account %s not in wallet", addr.Hex())
	}
	ordered := append([]common.Address{addr}, p.accounts[:idx]...)
	ordered = append(ordered, p.accounts[idx+1:]...)
	p.mu.Unlock()
	p.SwitchAccounts(ordered...)
	return nil
}

// SwitchAccounts replaces the account list and raises accountsChanged.
func (p *Provider) SwitchAccounts(accounts ...common.Address) {
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
	hexes := make([]string, 0, len(accounts))
	for _, a := range accounts {
		hexes = append(hexes, a.Hex())
	}
	p.feed.Send(wallet.Notification{Kind: wallet.AccountsChanged, Accounts: hexes})
}

// Call is one recorded Transact.
type Call struct {
	Method string
	Args   []interface{}
}

// Contract is an in-memory voting contract.
type Contract struct {
	address common.Address
	feed    event.Feed

	mu          sync.Mutex
	owner       common.Address
	phase       voting.Phase
	proposals   []voting.Proposal
	voters      map[common.Address]voting.Voter
	winner      uint64
	calls       []Call
	transactErr error
	readErr     error
	ownerReads  int
	binds       int
	logs        map[common.Hash]emitted
	nextLog     uint64
}

type emitted struct {
	log voting.Log
	by  common.Address
}

// NewContract returns a contract owned by owner in RegisteringVoters.
func NewContract(address, owner common.Address) *Contract {
	return &Contract{
		address: address,
		owner:   owner,
		voters:  make(map[common.Address]voting.Voter),
		logs:    make(map[common.Hash]emitted),
	}
}

// Binder returns a session.Binder yielding c and counting binds.
func (c *Contract) Binder() session.Binder {
	return func(common.Address, voting.Backend) (session.Contract, error) {
		c.mu.Lock()
		c.binds++
		c.mu.Unlock()
		return c, nil
	}
}

// Binds reports how many bindings were made.
func (c *Contract) Binds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binds
}

// OwnerReads reports how many times Owner was read.
func (c *Contract) OwnerReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownerReads
}

// Calls returns the recorded writes.
func (c *Contract) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// SetPhase sets the phase returned by WorkflowStatus without emitting a log.
func (c *Contract) SetPhase(p voting.Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// SetOwner changes the owner.
func (c *Contract) SetOwner(owner common.Address) {
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
}

// SetProposals replaces the proposal list.
func (c *Contract) SetProposals(proposals ...voting.Proposal) {
	c.mu.Lock()
	c.proposals = proposals
	c.mu.Unlock()
}

// SetVoter stores a voter record.
func (c *Contract) SetVoter(addr common.Address, v voting.Voter) {
	c.mu.Lock()
	c.voters[addr] = v
	c.mu.Unlock()
}

// SetWinner sets the winning proposal id.
func (c *Contract) SetWinner(id uint64) {
	c.mu.Lock()
	c.winner = id
	c.mu.Unlock()
}

// FailTransacts makes every write return err.
func (c *Contract) FailTransacts(err error) {
	c.mu.Lock()
	c.transactErr = err
	c.mu.Unlock()
}

// FailReads makes every read return err.
func (c *Contract) FailReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// Emit delivers l, sent by by, to log watchers. It returns the number of
// watchers reached.
func (c *Contract) Emit(l voting.Log, by common.Address) int {
	c.mu.Lock()
	c.nextLog++
	hash := common.BigToHash(new(big.Int).SetUint64(c.nextLog))
	c.logs[hash] = emitted{log: l, by: by}
	c.mu.Unlock()
	return c.feed.Send(types.Log{Address: c.address, TxHash: hash})
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) Owner(context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerReads++
	if c.readErr != nil {
		return common.Address{}, c.readErr
	}
	return c.owner, nil
}

func (c *Contract) WorkflowStatus(context.Context) (voting.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	return c.phase, nil
}

func (c *Contract) Proposals(context.Context) ([]voting.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	return append([]voting.Proposal(nil), c.proposals...), nil
}

func (c *Contract) Proposal(_ context.Context, id uint64) (voting.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return voting.Proposal{}, c.readErr
	}
	if id >= uint64(len(c.proposals)) {
		return voting.Proposal{}, fmt.Errorf("execution reverted: Proposal not found")
	}
	return c.proposals[id], nil
}

func (c *Contract) Voter(_ context.Context, addr common.Address) (voting.Voter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return voting.Voter{}, c.readErr
	}
	return c.voters[addr], nil
}

func (c *Contract) WinningProposalID(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	return c.winner, nil
}

func (c *Contract) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transactErr != nil {
		return nil, c.transactErr
	}
	c.calls = append(c.calls, Call{Method: method, Args: args})
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(c.calls)), To: &c.address}), nil
}

func (c *Contract) WatchLogs(ctx context.Context, sink chan<- types.Log) (event.Subscription, error) {
	return c.feed.Subscribe(sink), nil
}

func (c *Contract) ParseLog(log types.Log) (voting.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.logs[log.TxHash]
	if !ok {
		return nil, voting.ErrUnknownLog
	}
	return e.log, nil
}

func (c *Contract) Sender(_ context.Context, log types.Log) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.logs[log.TxHash]
	if !ok {
		return common.Address{}, voting.ErrUnknownLog
	}
	return e.by, nil
}
