package server

import (
	"sort"
	"time"

	"votesync/chain"
	"votesync/store"
	"votesync/voting"
)

type proposalDTO struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	VoteCount   string `json:"voteCount"`
}

type pendingDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	TxHash      string    `json:"txHash"`
	Subject     string    `json:"subject"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type sessionDTO struct {
	Connected    bool          `json:"connected"`
	Address      string        `json:"address"`
	NetworkID    uint64        `json:"networkId"`
	NetworkName  string        `json:"networkName,omitempty"`
	NetworkValid bool          `json:"networkValid"`
	IsAdmin      bool          `json:"isAdmin"`
	Phase        *phaseDTO     `json:"phase"`
	Loading      bool          `json:"loading"`
	Degraded     bool          `json:"degraded"`
	Proposals    []proposalDTO `json:"proposals"`
	Pending      []pendingDTO  `json:"pending"`
}

type phaseDTO struct {
	ID    uint8  `json:"id"`
	Label string `json:"label"`
}

type voterDTO struct {
	Address         string `json:"address"`
	IsRegistered    bool   `json:"isRegistered"`
	HasVoted        bool   `json:"hasVoted"`
	VotedProposalID uint64 `json:"votedProposalId"`
}

type networkDTO struct {
	ID       uint64 `json:"id"`
	Hex      string `json:"hex"`
	Name     string `json:"name,omitempty"`
	Expected bool   `json:"expected"`
}

type errorDTO struct {
	Error string `json:"error"`
}

func toPhase(p voting.Phase) *phaseDTO {
	return &phaseDTO{ID: uint8(p), Label: p.String()}
}

func toProposal(p voting.Proposal) proposalDTO {
	count := "0"
	if p.VoteCount != nil {
		count = p.VoteCount.Dec()
	}
	return proposalDTO{ID: p.ID, Description: p.Description, VoteCount: count}
}

func toProposals(list []voting.Proposal) []proposalDTO {
	out := make([]proposalDTO, 0, len(list))
	for _, p := range list {
		out = append(out, toProposal(p))
	}
	return out
}

func toSession(s store.Session) sessionDTO {
	dto := sessionDTO{
		Connected:    s.Connected,
		Address:      chain.AddressText(s.Address),
		NetworkID:    s.NetworkID,
		NetworkValid: s.NetworkValid,
		IsAdmin:      s.IsAdmin,
		Loading:      s.Loading,
		Degraded:     s.Degraded,
		Proposals:    toProposals(s.Proposals),
		Pending:      make([]pendingDTO, 0, len(s.Pending)),
	}
	if name, ok := chain.NetworkName(s.NetworkID); ok {
		dto.NetworkName = name
	}
	if s.PhaseKnown {
		dto.Phase = toPhase(s.Phase)
	}
	for _, p := range s.Pending {
		dto.Pending = append(dto.Pending, pendingDTO{
			ID:          p.ID,
			Kind:        string(p.Kind),
			TxHash:      p.TxHash.Hex(),
			Subject:     chain.AddressText(p.Subject),
			SubmittedAt: p.SubmittedAt,
		})
	}
	sort.Slice(dto.Pending, func(i, j int) bool { return dto.Pending[i].Kind < dto.Pending[j].Kind })
	return dto
}

func toPending(p store.Pending) pendingDTO {
	return pendingDTO{
		ID:          p.ID,
		Kind:        string(p.Kind),
		TxHash:      p.TxHash.Hex(),
		Subject:     chain.AddressText(p.Subject),
		SubmittedAt: p.SubmittedAt,
	}
}
