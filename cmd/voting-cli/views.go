package main

import (
	"time"

	"votesync/chain"
	"votesync/store"
	"votesync/voting"
)

type proposalView struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	VoteCount   string `json:"voteCount"`
}

type statusView struct {
	Connected    bool           `json:"connected"`
	Address      string         `json:"address"`
	NetworkID    uint64         `json:"networkId"`
	NetworkValid bool           `json:"networkValid"`
	IsAdmin      bool           `json:"isAdmin"`
	Phase        string         `json:"phase,omitempty"`
	Degraded     bool           `json:"degraded"`
	Proposals    []proposalView `json:"proposals"`
}

type pendingView struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	TxHash string `json:"txHash"`
}

type eventView struct {
	Kind  string      `json:"kind"`
	At    time.Time   `json:"at"`
	Event interface{} `json:"event"`
}

func newProposalView(p voting.Proposal) proposalView {
	count := "0"
	if p.VoteCount != nil {
		count = p.VoteCount.Dec()
	}
	return proposalView{ID: p.ID, Description: p.Description, VoteCount: count}
}

func newProposalViews(list []voting.Proposal) []proposalView {
	out := make([]proposalView, 0, len(list))
	for _, p := range list {
		out = append(out, newProposalView(p))
	}
	return out
}

func newStatusView(s store.Session) statusView {
	view := statusView{
		Connected:    s.Connected,
		Address:      chain.AddressText(s.Address),
		NetworkID:    s.NetworkID,
		NetworkValid: s.NetworkValid,
		IsAdmin:      s.IsAdmin,
		Degraded:     s.Degraded,
		Proposals:    newProposalViews(s.Proposals),
	}
	if s.PhaseKnown {
		view.Phase = s.Phase.String()
	}
	return view
}

func newPendingView(p store.Pending) pendingView {
	return pendingView{ID: p.ID, Kind: string(p.Kind), TxHash: p.TxHash.Hex()}
}
