package session

import "errors"

var (
	// ErrBadNetwork is returned when the wallet is on a network other than the
	// expected one. It clears once the wallet switches back.
	ErrBadNetwork = errors.New("wallet is on the wrong network")
	// ErrNoSigner is returned by writes when no unlocked account can sign.
	ErrNoSigner = errors.New("no signer available")
	// ErrInvalidPhaseTransition is returned when the requested phase is not
	// the immediate successor of the contract's current phase.
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	// ErrEmptyProposal rejects a blank proposal before any remote call.
	ErrEmptyProposal = errors.New("proposal description is empty")
	// ErrNotBound is returned when no contract binding exists and the network
	// is not known to be wrong.
	ErrNotBound = errors.New("contract not bound")
	// ErrNotConnected is returned when an operation needs a wallet connection
	// that was never opened.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)
