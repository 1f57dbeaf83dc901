package aprsis

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
	ErrBusy             = errors.New("connection attempt in progress")
	ErrAborted          = errors.New("connection attempt aborted")
	ErrClosed           = errors.New("client closed")
	ErrReceiveOnly      = errors.New("station is receive-only")
)

// StateError is returned when an operation is not valid in the client's
// current state. The socket is never touched when one is returned.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("aprsis %s: %v (state %s)", e.Op, e.Err, e.State)
}

func (e *StateError) Unwrap() error { return e.Err }

// ConnectionError is a socket-level failure: refused, reset, timeout or DNS.
type ConnectionError struct {
	Op     string // dial, read or write
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("aprsis %s %s: %v", e.Op, e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsDialError reports whether err is a failed connection attempt.
func IsDialError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Op == "dial"
}
