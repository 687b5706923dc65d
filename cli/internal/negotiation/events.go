package negotiation

import "github.com/BioHazard786/pairlink/internal/protocol"

// Event is one input to Machine.Step.
type Event interface {
	event()
}

// Start asks to create or join Room. An empty Room lets the server pick one.
type Start struct{ Room string }

// Signaling server events.
type (
	RoomCreated struct{ Room, ClientID string }
	RoomJoined  struct{ Room, ClientID string }
	RoomFull    struct{ Room string }
	PeerReady   struct{}

	// PeerLeft reports that the room peer disconnected without a bye. The
	// room stays open for a replacement.
	PeerLeft struct{}

	// RemoteSignal is a relayed message from the room peer.
	RemoteSignal struct{ Signal protocol.Signal }

	// SignalingClosed reports loss of the signaling connection.
	SignalingClosed struct{ Err error }
)

// Results of effects performed by the session.
type (
	MediaAcquired struct{ Media LocalMedia }
	MediaFailed   struct{ Err error }

	// Gen identifies the transport a result belongs to; results for a
	// transport dropped after PeerLeft are ignored.
	TransportCreated struct{ Gen int }

	LocalDescriptionReady struct {
		Desc protocol.SessionDescription
		Gen  int
	}

	RemoteApplied struct {
		Kind protocol.SignalKind
		Gen  int
	}

	OperationFailed struct {
		Op  string
		Err error
	}
)

// Transport notifications.
type (
	LocalCandidate  struct{ Candidate protocol.Candidate }
	ChannelState    struct {
		Label string
		Open  bool
	}
	ConnectionState struct{ State string }
)

// Teardown is a local request to end the session.
type Teardown struct{}

func (Start) event()                 {}
func (RoomCreated) event()           {}
func (RoomJoined) event()            {}
func (RoomFull) event()              {}
func (PeerReady) event()             {}
func (PeerLeft) event()              {}
func (RemoteSignal) event()          {}
func (SignalingClosed) event()       {}
func (MediaAcquired) event()         {}
func (MediaFailed) event()           {}
func (TransportCreated) event()      {}
func (LocalDescriptionReady) event() {}
func (RemoteApplied) event()         {}
func (OperationFailed) event()       {}
func (LocalCandidate) event()        {}
func (ChannelState) event()          {}
func (ConnectionState) event()       {}
func (Teardown) event()              {}
