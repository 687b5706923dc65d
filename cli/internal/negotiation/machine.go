package negotiation

import (
	"fmt"

	"github.com/BioHazard786/pairlink/internal/protocol"
)

// Machine holds one session's negotiation state. Step is its only mutator
// and performs no I/O; the caller executes the returned effects in order.
type Machine struct {
	state    State
	role     Role
	room     string
	clientID string

	mediaReady   bool
	mediaStopped bool
	peerReady    bool

	// transport is true from the CreateTransport effect until it fails or is
	// closed; transportUp once it has been created.
	transport   bool
	transportUp bool
	remoteSet   bool
	// gen counts transports; it advances when a departed peer's transport
	// is dropped so its late results are ignored.
	gen int

	pendingOffer      *protocol.SessionDescription
	pendingCandidates []protocol.Candidate
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State     { return m.state }
func (m *Machine) Role() Role       { return m.role }
func (m *Machine) Room() string     { return m.room }
func (m *Machine) ClientID() string { return m.clientID }

// PendingCandidates returns the number of remote candidates waiting for a
// remote description.
func (m *Machine) PendingCandidates() int { return len(m.pendingCandidates) }

// Step applies ev and returns the effects to perform.
func (m *Machine) Step(ev Event) []Effect {
	if m.state.Terminal() {
		return m.stepTerminal(ev)
	}

	switch ev := ev.(type) {
	case Start:
		if m.state != StateIdle {
			return m.reject(OpJoinRoom, fmt.Errorf("already started in state %s", m.state))
		}
		m.state = StateAwaitingRoom
		return []Effect{JoinRoom{Room: ev.Room}, m.report("joining room")}

	case RoomCreated:
		if m.state != StateAwaitingRoom {
			return nil
		}
		m.state, m.role = StateInitiator, RoleInitiator
		m.room, m.clientID = ev.Room, ev.ClientID
		return m.acquire("room created")

	case RoomJoined:
		if m.state != StateAwaitingRoom {
			return nil
		}
		m.state, m.role = StateReceiver, RoleReceiver
		m.room, m.clientID = ev.Room, ev.ClientID
		return m.acquire("joined room")

	case RoomFull:
		if m.state != StateAwaitingRoom {
			return nil
		}
		m.room = ev.Room
		return m.teardown(StateClosed, ErrRoomFull, false)

	case PeerReady:
		m.peerReady = true
		return m.maybeOffer()

	case PeerLeft:
		return m.onPeerLeft()

	case MediaAcquired:
		m.mediaReady = true
		effects := []Effect{SendSignal{Signal: protocol.GotUserMedia()}, m.report("local media ready")}
		effects = append(effects, m.maybeOffer()...)
		return append(effects, m.maybeAnswer()...)

	case MediaFailed:
		return m.teardown(StateUnavailable, &MediaAcquisitionError{Err: ev.Err}, false)

	case RemoteSignal:
		return m.onSignal(ev.Signal)

	case TransportCreated:
		if !m.transport || ev.Gen != m.gen {
			return nil
		}
		m.transportUp = true
		if m.role == RoleInitiator {
			return []Effect{CreateOffer{}}
		}
		if m.pendingOffer != nil {
			return []Effect{ApplyRemote{Desc: *m.pendingOffer}}
		}
		return nil

	case LocalDescriptionReady:
		if ev.Gen != m.gen {
			return nil
		}
		switch ev.Desc.Type {
		case protocol.KindOffer:
			return []Effect{SendSignal{Signal: protocol.Offer(ev.Desc.SDP)}, m.report("offer sent")}
		case protocol.KindAnswer:
			m.state = StateConnected
			return []Effect{SendSignal{Signal: protocol.Answer(ev.Desc.SDP)}, m.report("answer sent")}
		}
		return nil

	case RemoteApplied:
		if ev.Gen != m.gen {
			return nil
		}
		return m.onRemoteApplied(ev.Kind)

	case OperationFailed:
		if ev.Op == OpCreateTransport {
			m.transport, m.transportUp = false, false
		}
		return []Effect{ReportError{Err: newNegotiationError(ev.Op, ev.Err)}}

	case LocalCandidate:
		return []Effect{SendSignal{Signal: protocol.CandidateSignal(ev.Candidate)}}

	case ChannelState:
		note := fmt.Sprintf("channel %s closed", ev.Label)
		if ev.Open {
			note = fmt.Sprintf("channel %s open", ev.Label)
		}
		st := m.status(note)
		st.Channel, st.ChannelOpen = ev.Label, ev.Open
		return []Effect{ReportStatus{Status: st}}

	case ConnectionState:
		st := m.status("connection " + ev.State)
		st.Connection = ev.State
		effects := []Effect{ReportStatus{Status: st}}
		if ev.State == "failed" {
			effects = append(effects, ReportError{Err: newNegotiationError(OpConnection, ErrConnectionFailed)})
		}
		return effects

	case SignalingClosed:
		if m.state == StateConnected {
			return []Effect{m.report("signaling connection closed")}
		}
		err := ErrSignalingClosed
		if ev.Err != nil {
			err = fmt.Errorf("%w: %v", ErrSignalingClosed, ev.Err)
		}
		return m.teardown(StateClosed, err, false)

	case Teardown:
		return m.teardown(StateClosed, nil, m.room != "")
	}
	return nil
}

func (m *Machine) stepTerminal(ev Event) []Effect {
	switch ev := ev.(type) {
	case MediaAcquired:
		// Acquisition finished after teardown; release it.
		m.mediaReady = true
		if !m.mediaStopped {
			m.mediaStopped = true
			return []Effect{StopMedia{}}
		}
	case RemoteSignal:
		if ev.Signal.Kind == protocol.KindOffer || ev.Signal.Kind == protocol.KindAnswer {
			return []Effect{ReportError{Err: newNegotiationError(OpHandleSignal,
				fmt.Errorf("%w: %s after session ended", ErrUnexpectedSignal, ev.Signal.Kind))}}
		}
	}
	return nil
}

func (m *Machine) onSignal(sig protocol.Signal) []Effect {
	switch sig.Kind {
	case protocol.KindGotUserMedia:
		return []Effect{m.report("peer media ready")}

	case protocol.KindBye:
		return m.teardown(StateClosed, nil, false)

	case protocol.KindOffer:
		if m.role != RoleReceiver {
			return m.unexpected(sig.Kind, "not the receiver")
		}
		if m.pendingOffer != nil || m.transport {
			return m.unexpected(sig.Kind, "offer already received")
		}
		desc := *sig.Description
		m.pendingOffer = &desc
		m.state = StateNegotiating
		effects := []Effect{m.report("offer received")}
		return append(effects, m.maybeAnswer()...)

	case protocol.KindAnswer:
		if m.role != RoleInitiator {
			return m.unexpected(sig.Kind, "not the initiator")
		}
		if !m.transportUp || m.remoteSet {
			return m.unexpected(sig.Kind, "no outstanding offer")
		}
		return []Effect{ApplyRemote{Desc: *sig.Description}}

	case protocol.KindCandidate:
		if m.transportUp && m.remoteSet {
			return []Effect{AddCandidate{Candidate: *sig.Candidate}}
		}
		m.pendingCandidates = append(m.pendingCandidates, *sig.Candidate)
		return nil
	}
	return m.unexpected(sig.Kind, "unknown kind")
}

func (m *Machine) onRemoteApplied(kind protocol.SignalKind) []Effect {
	m.remoteSet = true

	var effects []Effect
	for _, c := range m.pendingCandidates {
		effects = append(effects, AddCandidate{Candidate: c})
	}
	m.pendingCandidates = nil

	switch kind {
	case protocol.KindOffer:
		m.pendingOffer = nil
		effects = append(effects, CreateAnswer{})
	case protocol.KindAnswer:
		m.state = StateConnected
		effects = append(effects, m.report("answer applied"))
	}
	return effects
}

// maybeOffer starts the initiator's offer once media and peer are both ready.
func (m *Machine) maybeOffer() []Effect {
	if m.role != RoleInitiator || !m.mediaReady || !m.peerReady || m.transport {
		return nil
	}
	m.transport = true
	m.state = StateNegotiating
	return []Effect{CreateTransport{Initiator: true, Gen: m.gen}, m.report("peer ready, creating offer")}
}

// maybeAnswer starts the receiver's transport once media and offer are both
// present.
func (m *Machine) maybeAnswer() []Effect {
	if m.role != RoleReceiver || !m.mediaReady || m.pendingOffer == nil || m.transport {
		return nil
	}
	m.transport = true
	return []Effect{CreateTransport{Initiator: false, Gen: m.gen}}
}

// onPeerLeft drops the departed peer's transport and waits, as initiator,
// for the next peer to join the room. Local media is kept.
func (m *Machine) onPeerLeft() []Effect {
	if m.state == StateIdle || m.state == StateAwaitingRoom {
		return nil
	}
	var effects []Effect
	if m.transport {
		effects = append(effects, CloseTransport{})
	}
	m.transport, m.transportUp, m.remoteSet = false, false, false
	m.peerReady = false
	m.pendingOffer, m.pendingCandidates = nil, nil
	m.gen++
	m.state, m.role = StateInitiator, RoleInitiator
	return append(effects, m.report("peer left, waiting for a new peer"))
}

func (m *Machine) acquire(note string) []Effect {
	return []Effect{m.report(note), AcquireMedia{}}
}

// teardown moves to a terminal state releasing everything the session owns.
func (m *Machine) teardown(final State, err error, sendBye bool) []Effect {
	var effects []Effect
	if sendBye {
		effects = append(effects, SendSignal{Signal: protocol.Bye()})
	}
	if m.transport {
		m.transport, m.transportUp = false, false
		effects = append(effects, CloseTransport{})
	}
	if m.mediaReady && !m.mediaStopped {
		m.mediaStopped = true
		effects = append(effects, StopMedia{})
	}
	m.pendingOffer, m.pendingCandidates = nil, nil
	m.state = final

	st := m.status("session ended")
	st.Err = err
	return append(effects, CloseSignaling{}, ReportStatus{Status: st}, Finish{Err: err})
}

func (m *Machine) unexpected(kind protocol.SignalKind, why string) []Effect {
	return m.reject(OpHandleSignal, fmt.Errorf("%w: %s (%s)", ErrUnexpectedSignal, kind, why))
}

func (m *Machine) reject(op string, err error) []Effect {
	return []Effect{ReportError{Err: newNegotiationError(op, err)}}
}

func (m *Machine) status(note string) Status {
	return Status{State: m.state, Role: m.role, Room: m.room, Note: note}
}

func (m *Machine) report(note string) Effect {
	return ReportStatus{Status: m.status(note)}
}
