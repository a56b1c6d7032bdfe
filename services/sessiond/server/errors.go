package server

import (
	"errors"
	"net/http"

	"votesync/chain"
	"votesync/session"
	"votesync/voting"
	"votesync/wallet"
)

var errBadRequest = errors.New("malformed request")

// statusFor maps session and contract failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, session.ErrEmptyProposal),
		errors.Is(err, session.ErrInvalidPhaseTransition):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSigner),
		errors.Is(err, wallet.ErrNoWallet),
		errors.Is(err, wallet.ErrNoAccounts),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrBadNetwork),
		errors.Is(err, session.ErrNotBound):
		return http.StatusConflict
	case errors.Is(err, voting.ErrContractRevert):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// messageFor returns the text shown to clients. Reverts carry the node's
// message unmodified.
func messageFor(err error) string {
	var revert *voting.RevertError
	if errors.As(err, &revert) {
		return revert.Error()
	}
	return err.Error()
}
