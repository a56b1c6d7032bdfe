package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"votesync/events"
	"votesync/voting"
)

// Session is a snapshot of the synchronized session state.
type Session struct {
	Connected bool
	// Address is checksummed, or chain.DefaultAddress when no account is
	// connected.
	Address      common.Address
	NetworkID    uint64
	NetworkValid bool
	// IsAdmin is only ever true while NetworkValid holds.
	IsAdmin    bool
	Phase      voting.Phase
	PhaseKnown bool
	Loading    bool
	// Degraded is set when boot or a resynchronization failed part way.
	Degraded  bool
	Proposals []voting.Proposal
	Pending   map[PendingKind]Pending
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.Proposals != nil {
		out.Proposals = make([]voting.Proposal, len(s.Proposals))
		for i, p := range s.Proposals {
			if p.VoteCount != nil {
				p.VoteCount = p.VoteCount.Clone()
			}
			out.Proposals[i] = p
		}
	}
	out.Pending = make(map[PendingKind]Pending, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	return out
}

// PendingKind names an action awaiting its confirming contract event.
type PendingKind string

const (
	PendingPhase    PendingKind = "phase"
	PendingVoter    PendingKind = "voter"
	PendingProposal PendingKind = "proposal"
	PendingVote     PendingKind = "vote"
)

// Pending is an in-flight write.
type Pending struct {
	ID          string
	Kind        PendingKind
	TxHash      common.Hash
	Subject     common.Address
	SubmittedAt time.Time
}

// NoticeLevel grades a Notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a one-shot signal for the UI layer.
type Notice struct {
	Level   NoticeLevel
	Kind    string
	Message string
	At      time.Time
}

// Applied is a bridged event the store has finished handling.
type Applied struct {
	Event events.Event
	At    time.Time
}

// AddressLedger remembers when each address was last used.
type AddressLedger interface {
	Put(ctx context.Context, addr common.Address, at time.Time) error
	Remove(ctx context.Context, addr common.Address) error
	// MostRecentlyUsed returns chain.DefaultAddress when the ledger is empty.
	MostRecentlyUsed(ctx context.Context) (common.Address, error)
}
