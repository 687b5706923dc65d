package negotiation

import "github.com/BioHazard786/pairlink/internal/protocol"

// Effect is a side effect requested by Machine.Step. Effects that can fail
// or produce a value report back through a later Event.
type Effect interface {
	effect()
}

type (
	JoinRoom     struct{ Room string }
	SendSignal   struct{ Signal protocol.Signal }
	AcquireMedia struct{}

	// CreateTransport builds the peer connection and attaches local media.
	// The initiator also opens the data channels. Results for the new
	// transport carry Gen.
	CreateTransport struct {
		Initiator bool
		Gen       int
	}

	CreateOffer  struct{}
	CreateAnswer struct{}
	ApplyRemote  struct{ Desc protocol.SessionDescription }
	AddCandidate struct{ Candidate protocol.Candidate }

	CloseTransport struct{}
	StopMedia      struct{}
	CloseSignaling struct{}

	ReportStatus struct{ Status Status }
	ReportError  struct{ Err error }

	// Finish ends the session; Err is returned from Session.Run.
	Finish struct{ Err error }
)

func (JoinRoom) effect()        {}
func (SendSignal) effect()      {}
func (AcquireMedia) effect()    {}
func (CreateTransport) effect() {}
func (CreateOffer) effect()     {}
func (CreateAnswer) effect()    {}
func (ApplyRemote) effect()     {}
func (AddCandidate) effect()    {}
func (CloseTransport) effect()  {}
func (StopMedia) effect()       {}
func (CloseSignaling) effect()  {}
func (ReportStatus) effect()    {}
func (ReportError) effect()     {}
func (Finish) effect()          {}
