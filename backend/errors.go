package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers transport failures: refused, timed out, reset or closed.
	ErrConnection = errors.New("backend connection error")
	// ErrProtocol covers malformed replies and replies of an unexpected shape.
	ErrProtocol = errors.New("backend protocol error")
	// ErrBackendUnavailable is returned when negotiation produced no usable store.
	ErrBackendUnavailable = errors.New("no backend available")
)

// ConnectionError records the operation and address of a transport failure.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: connection closed", e.Op, e.Addr)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ProtocolError records an unexpected reply to a command.
type ProtocolError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// ReplyError is an error reply sent by the server itself.
type ReplyError struct {
	Op  string
	Msg string
}

func (e *ReplyError) Error() string { return e.Op + ": " + e.Msg }
