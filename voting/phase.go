package voting

import "fmt"

// Phase is the contract's workflow status. Values match the on-chain enum.
type Phase uint8

const (
	RegisteringVoters Phase = iota
	ProposalsRegistrationStarted
	ProposalsRegistrationEnded
	VotingSessionStarted
	VotingSessionEnded
	VotesTallied
)

// Phases lists every phase in workflow order.
var Phases = []Phase{
	RegisteringVoters,
	ProposalsRegistrationStarted,
	ProposalsRegistrationEnded,
	VotingSessionStarted,
	VotingSessionEnded,
	VotesTallied,
}

var phaseInfo = map[Phase]struct {
	label  string
	method string
}{
	RegisteringVoters:            {label: "Registering voters"},
	ProposalsRegistrationStarted: {label: "Proposals registration started", method: "startProposalsRegistering"},
	ProposalsRegistrationEnded:   {label: "Proposals registration ended", method: "endProposalsRegistering"},
	VotingSessionStarted:         {label: "Voting session started", method: "startVotingSession"},
	VotingSessionEnded:           {label: "Voting session ended", method: "endVotingSession"},
	VotesTallied:                 {label: "Votes tallied", method: "tallyVotes"},
}

// Valid reports whether p is one of the six workflow phases.
func (p Phase) Valid() bool {
	return p <= VotesTallied
}

// String returns the display label.
func (p Phase) String() string {
	if info, ok := phaseInfo[p]; ok {
		return info.label
	}
	return fmt.Sprintf("Unknown phase (%d)", uint8(p))
}

// Next returns the immediate successor. The terminal phase has none.
func (p Phase) Next() (Phase, bool) {
	if !p.Valid() || p == VotesTallied {
		return p, false
	}
	return p + 1, true
}

// IsNextOf reports whether p directly follows current.
func (p Phase) IsNextOf(current Phase) bool {
	next, ok := current.Next()
	return ok && next == p
}

// TransitionMethod names the contract call that advances the workflow to p.
// RegisteringVoters is the initial phase and cannot be entered by a call.
func (p Phase) TransitionMethod() (string, bool) {
	info, ok := phaseInfo[p]
	if !ok || info.method == "" {
		return "", false
	}
	return info.method, true
}

// ParsePhase converts a raw numeric status into a Phase.
func ParsePhase(raw uint64) (Phase, error) {
	if raw > uint64(VotesTallied) {
		return 0, fmt.Errorf("unknown workflow status %d", raw)
	}
	return Phase(raw), nil
}
