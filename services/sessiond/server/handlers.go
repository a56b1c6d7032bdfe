package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"votesync/chain"
	"votesync/voting"
)

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toSession(s.store.Snapshot()))
}

func (s *Server) getProposals(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.Manager().Proposals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProposals(list))
}

func (s *Server) getWinner(w http.ResponseWriter, r *http.Request) {
	winner, err := s.store.Manager().Winner(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProposal(winner))
}

func (s *Server) getVoter(w http.ResponseWriter, r *http.Request) {
	addr, err := chain.FormatAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	voter, err := s.store.Manager().Voter(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, voterDTO{
		Address:         addr.Hex(),
		IsRegistered:    voter.IsRegistered,
		HasVoted:        voter.HasVoted,
		VotedProposalID: voter.VotedProposalID,
	})
}

func (s *Server) getNetwork(w http.ResponseWriter, r *http.Request) {
	id, err := chain.ParseChainID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	name, _ := chain.NetworkName(id)
	s.writeJSON(w, http.StatusOK, networkDTO{
		ID:       id,
		Hex:      chain.FormatChainID(id),
		Name:     name,
		Expected: s.store.Manager().Guard().IsNetworkValid(id),
	})
}

func (s *Server) connectWallet(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.ConnectWallet(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSession(snapshot))
}

func (s *Server) disconnectWallet(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.DisconnectWallet(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSession(snapshot))
}

func (s *Server) advancePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target *uint64 `json:"target"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Target == nil {
		s.writeError(w, r, fmt.Errorf("%w: target required", errBadRequest))
		return
	}
	target, err := voting.ParsePhase(*req.Target)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	pending, err := s.store.AdvancePhase(r.Context(), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toPending(pending))
}

func (s *Server) addVoter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pending, err := s.store.AddVoter(r.Context(), req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toPending(pending))
}

func (s *Server) addProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pending, err := s.store.AddProposal(r.Context(), req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toPending(pending))
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposalID *uint64 `json:"proposalId"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ProposalID == nil {
		s.writeError(w, r, fmt.Errorf("%w: proposalId required", errBadRequest))
		return
	}
	pending, err := s.store.Vote(r.Context(), *req.ProposalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toPending(pending))
}

func (s *Server) tally(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.Tally(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toPending(pending))
}
