package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrStaleAnswer     = errors.New("stale answer")
	ErrMalformedSignal = errors.New("malformed signal")
	ErrNotJoined       = errors.New("not in a call")
	ErrPeerFailed      = errors.New("peer connection failed")
)

// Error describes a failed operation on the session with one peer.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	switch {
	case e.Peer != "" && e.Details != "":
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	case e.Peer != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	case e.Details != "":
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func wrapError(op, peer string, err error, details string) *Error {
	return &Error{Op: op, Peer: peer, Err: err, Details: details}
}
