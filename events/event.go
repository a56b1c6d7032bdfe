package events

import (
	"github.com/ethereum/go-ethereum/common"

	"votesync/voting"
)

// Kind names an event for logs and metrics.
type Kind string

const (
	KindNetworkChanged     Kind = "network_changed"
	KindAccountChanged     Kind = "account_changed"
	KindPhaseChanged       Kind = "phase_changed"
	KindVoterRegistered    Kind = "voter_registered"
	KindProposalRegistered Kind = "proposal_registered"
	KindVoted              Kind = "voted"
)

// Event is a normalized notification. The set of implementations is closed:
// NetworkChanged, AccountChanged, PhaseChanged, VoterRegistered,
// ProposalRegistered and Voted.
type Event interface {
	Kind() Kind
	sealed()
}

// NetworkChanged reports that the wallet switched networks.
type NetworkChanged struct {
	NetworkID uint64
}

// AccountChanged reports the wallet's new active account. Address is
// chain.DefaultAddress when the wallet exposes no account.
type AccountChanged struct {
	Address common.Address
}

// PhaseChanged reports a WorkflowStatusChange log.
type PhaseChanged struct {
	Old voting.Phase
	New voting.Phase
}

// VoterRegistered reports that Voter was registered by the account By.
type VoterRegistered struct {
	Voter common.Address
	By    common.Address
}

// ProposalRegistered reports proposal Index submitted by By.
type ProposalRegistered struct {
	Index uint64
	By    common.Address
}

// Voted reports that Voter voted for ProposalID.
type Voted struct {
	Voter      common.Address
	ProposalID uint64
}

func (NetworkChanged) Kind() Kind     { return KindNetworkChanged }
func (AccountChanged) Kind() Kind     { return KindAccountChanged }
func (PhaseChanged) Kind() Kind       { return KindPhaseChanged }
func (VoterRegistered) Kind() Kind    { return KindVoterRegistered }
func (ProposalRegistered) Kind() Kind { return KindProposalRegistered }
func (Voted) Kind() Kind              { return KindVoted }

func (NetworkChanged) sealed()     {}
func (AccountChanged) sealed()     {}
func (PhaseChanged) sealed()       {}
func (VoterRegistered) sealed()    {}
func (ProposalRegistered) sealed() {}
func (Voted) sealed()              {}
