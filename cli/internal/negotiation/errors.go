package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrNegotiation      = errors.New("negotiation failed")
	ErrRoomFull         = errors.New("room is full")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrSignalingClosed  = errors.New("signaling connection closed")
	ErrNoTransport      = errors.New("no transport")
)

// Operation names used in NegotiationError.
const (
	OpJoinRoom        = "join room"
	OpSendSignal      = "send signal"
	OpCreateTransport = "create transport"
	OpCreateOffer     = "create offer"
	OpCreateAnswer    = "create answer"
	OpSetRemote       = "set remote description"
	OpAddCandidate    = "add ICE candidate"
	OpHandleSignal    = "handle signal"
	OpConnection      = "connection"
)

// MediaAcquisitionError is terminal for the session attempt.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire local media: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

func (e *MediaAcquisitionError) Is(target error) bool { return target == ErrMediaUnavailable }

// NegotiationError is reported but leaves the session in its current state.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

func (e *NegotiationError) Is(target error) bool { return target == ErrNegotiation }

func newNegotiationError(op string, err error) *NegotiationError {
	return &NegotiationError{Op: op, Err: err}
}
