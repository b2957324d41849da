// Package connection owns the single duplex socket to the chat backend and
// multiplexes topic joins, request/reply pushes and server broadcasts over it.
package connection

import (
	"errors"
	"fmt"
)

// Status is the socket lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusChange is reported to status observers on every transition.
type StatusChange struct {
	Status Status
	Err    error
}

var (
	// ErrTimeout is returned when a push gets no reply within the push timeout.
	ErrTimeout = errors.New("timeout")

	// ErrDisconnected is returned to requests pending when the stream dropped
	// or the socket was closed.
	ErrDisconnected = errors.New("disconnected")

	// ErrNotConnected is returned when pushing on a socket that is not connected.
	ErrNotConnected = errors.New("not connected")
)

// ReplyError is a request rejected by the backend.
type ReplyError struct {
	Topic  string
	Event  string
	Reason string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s on %s rejected: %s", e.Event, e.Topic, e.Reason)
}
