package types

import "errors"

var (
	// ErrInvalidEncoding is returned when a byte string arrives in any shape
	// other than its canonical hex form.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrNotRegistered is returned when a user has no public key on the
	// key directory.
	ErrNotRegistered = errors.New("user not registered")

	// ErrRelayUnavailable is returned when the presence relay cannot deliver
	// to the target because it has no live connection. It is never fatal.
	ErrRelayUnavailable = errors.New("relay unavailable")

	// ErrNoSession is returned when an operation needs an established
	// session and there is none.
	ErrNoSession = errors.New("no active session")

	// ErrPeerMismatch is returned when an operation names a peer other than
	// the one the active session is bound to.
	ErrPeerMismatch = errors.New("peer does not match active session")
)
