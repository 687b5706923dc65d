// Package negotiation drives one peer through room join, offer/answer and
// ICE exchange to a connected transport.
package negotiation

// State is the session's negotiation phase.
type State int

const (
	StateIdle State = iota
	StateAwaitingRoom
	StateInitiator
	StateReceiver
	StateNegotiating
	StateConnected
	StateClosed
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRoom:
		return "awaiting room"
	case StateInitiator:
		return "initiator"
	case StateReceiver:
		return "receiver"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateUnavailable
}

// Role is fixed by join order: the room creator offers, the joiner answers.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleReceiver:
		return "receiver"
	}
	return "none"
}

// Status is one update for the UI.
type Status struct {
	State State
	Role  Role
	Room  string

	// Note is a short human readable description of what happened.
	Note string

	// Channel is set for data channel transitions.
	Channel     string
	ChannelOpen bool

	// Connection is set for peer connection state changes.
	Connection string

	// Err is set for reported failures.
	Err error
}

// StatusSink receives state transitions for display.
type StatusSink interface {
	Status(Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(Status)

func (f StatusFunc) Status(s Status) { f(s) }
