package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"votesync/chain"
	"votesync/voting"
	"votesync/wallet"
)

// Writes return once the node accepts the transaction. Confirmation arrives
// later as a contract event.

// SubmitPhaseTransition advances the contract to target, which must be the
// immediate successor of the phase read live from the contract.
func (m *Manager) SubmitPhaseTransition(ctx context.Context, target voting.Phase) (*types.Transaction, error) {
	method, ok := target.TransitionMethod()
	if !ok {
		return nil, fmt.Errorf("%s has no transition: %w", target, ErrInvalidPhaseTransition)
	}
	ctx, span := m.tracer.Start(ctx, "session.phase_transition",
		trace.WithAttributes(attribute.String("voting.method", method)))
	defer span.End()

	opts, contract, err := m.prepareWrite(ctx)
	if err != nil {
		return nil, m.failWrite(span, method, err)
	}
	current, err := contract.WorkflowStatus(ctx)
	if err != nil {
		return nil, m.failWrite(span, method, fmt.Errorf("read phase: %w", err))
	}
	if !target.IsNextOf(current) {
		err := fmt.Errorf("%s cannot follow %s: %w", target, current, ErrInvalidPhaseTransition)
		return nil, m.failWrite(span, method, err)
	}
	return m.transact(span, contract, opts, method)
}

// RegisterVoter whitelists raw as a voter.
func (m *Manager) RegisterVoter(ctx context.Context, raw string) (*types.Transaction, error) {
	addr, err := chain.FormatAddress(raw)
	if err != nil {
		return nil, err
	}
	ctx, span := m.tracer.Start(ctx, "session.register_voter",
		trace.WithAttributes(attribute.String("voting.voter", addr.Hex())))
	defer span.End()

	opts, contract, err := m.prepareWrite(ctx)
	if err != nil {
		return nil, m.failWrite(span, voting.MethodAddVoter, err)
	}
	return m.transact(span, contract, opts, voting.MethodAddVoter, addr)
}

// SubmitProposal registers a proposal. A blank description is rejected
// before any remote call.
func (m *Manager) SubmitProposal(ctx context.Context, description string) (*types.Transaction, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyProposal
	}
	ctx, span := m.tracer.Start(ctx, "session.submit_proposal")
	defer span.End()

	opts, contract, err := m.prepareWrite(ctx)
	if err != nil {
		return nil, m.failWrite(span, voting.MethodAddProposal, err)
	}
	return m.transact(span, contract, opts, voting.MethodAddProposal, description)
}

// CastVote votes for proposalID.
func (m *Manager) CastVote(ctx context.Context, proposalID uint64) (*types.Transaction, error) {
	ctx, span := m.tracer.Start(ctx, "session.cast_vote",
		trace.WithAttributes(attribute.Int64("voting.proposal_id", int64(proposalID))))
	defer span.End()

	opts, contract, err := m.prepareWrite(ctx)
	if err != nil {
		return nil, m.failWrite(span, voting.MethodSetVote, err)
	}
	return m.transact(span, contract, opts, voting.MethodSetVote, new(big.Int).SetUint64(proposalID))
}

// TallyVotes is SubmitPhaseTransition(VotesTallied).
func (m *Manager) TallyVotes(ctx context.Context) (*types.Transaction, error) {
	return m.SubmitPhaseTransition(ctx, voting.VotesTallied)
}

// prepareWrite resolves a signer first, then the binding.
func (m *Manager) prepareWrite(ctx context.Context) (*bind.TransactOpts, Contract, error) {
	m.mu.RLock()
	provider, networkID, closed := m.provider, m.networkID, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, nil, ErrClosed
	}
	if provider == nil {
		return nil, nil, ErrNoSigner
	}
	opts, err := provider.Signer(ctx, new(big.Int).SetUint64(networkID))
	if err != nil {
		if errors.Is(err, wallet.ErrLocked) {
			return nil, nil, fmt.Errorf("%w: %v", ErrNoSigner, err)
		}
		return nil, nil, fmt.Errorf("signer: %w", err)
	}
	contract, err := m.binding()
	if err != nil {
		return nil, nil, err
	}
	return opts, contract, nil
}

func (m *Manager) transact(span trace.Span, contract Contract, opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, m.failWrite(span, method, err)
	}
	m.metrics.RecordWrite(method, nil)
	span.SetAttributes(attribute.String("tx.hash", tx.Hash().Hex()))
	span.SetStatus(codes.Ok, "submitted")
	m.logger.Info("transaction submitted",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("from", opts.From.Hex()))
	return tx, nil
}

func (m *Manager) failWrite(span trace.Span, method string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.metrics.RecordWrite(method, err)
	m.logger.Warn("write rejected", slog.String("method", method), slog.Any("error", err))
	return err
}
