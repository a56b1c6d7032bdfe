package voting

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Proposal is one entry of the contract's proposal list.
type Proposal struct {
	ID          uint64       `json:"id"`
	Description string       `json:"description"`
	VoteCount   *uint256.Int `json:"voteCount"`
}

// Voter mirrors the contract's voter record.
type Voter struct {
	IsRegistered    bool   `json:"isRegistered"`
	HasVoted        bool   `json:"hasVoted"`
	VotedProposalID uint64 `json:"votedProposalId"`
}

// Log is a decoded contract event. The concrete types are
// WorkflowStatusChangeLog, VoterRegisteredLog, ProposalRegisteredLog and
// VotedLog.
type Log interface {
	EventName() string
	RawLog() types.Log
}

type WorkflowStatusChangeLog struct {
	Previous Phase
	New      Phase
	Raw      types.Log
}

type VoterRegisteredLog struct {
	Voter common.Address
	Raw   types.Log
}

type ProposalRegisteredLog struct {
	ProposalID uint64
	Raw        types.Log
}

type VotedLog struct {
	Voter      common.Address
	ProposalID uint64
	Raw        types.Log
}

func (WorkflowStatusChangeLog) EventName() string { return EventWorkflowStatusChange }
func (VoterRegisteredLog) EventName() string      { return EventVoterRegistered }
func (ProposalRegisteredLog) EventName() string   { return EventProposalRegistered }
func (VotedLog) EventName() string                { return EventVoted }

func (l WorkflowStatusChangeLog) RawLog() types.Log { return l.Raw }
func (l VoterRegisteredLog) RawLog() types.Log      { return l.Raw }
func (l ProposalRegisteredLog) RawLog() types.Log   { return l.Raw }
func (l VotedLog) RawLog() types.Log                { return l.Raw }

// ABI tuple shapes. Field names follow the abigen camel-casing of the tuple
// components so abi.ConvertType can populate them.
type proposalTuple struct {
	Description string
	VoteCount   *big.Int
}

type voterTuple struct {
	IsRegistered    bool
	HasVoted        bool
	VotedProposalId *big.Int
}

func (p proposalTuple) toProposal(id uint64) Proposal {
	count := new(uint256.Int)
	if p.VoteCount != nil {
		if converted, overflow := uint256.FromBig(p.VoteCount); !overflow {
			count = converted
		}
	}
	return Proposal{ID: id, Description: p.Description, VoteCount: count}
}

func (v voterTuple) toVoter() Voter {
	voter := Voter{IsRegistered: v.IsRegistered, HasVoted: v.HasVoted}
	if v.VotedProposalId != nil && v.VotedProposalId.IsUint64() {
		voter.VotedProposalID = v.VotedProposalId.Uint64()
	}
	return voter
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
