package signaling

import (
	"log/slog"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/internal/protocol"
)

// Poster accepts negotiation events. *negotiation.Session implements it.
type Poster interface {
	Post(negotiation.Event) bool
}

// Handler routes incoming server envelopes to a session.
type Handler struct {
	client *Client
	post   Poster
	log    *slog.Logger

	// OnLog, when set, receives the server's diagnostic log lines.
	OnLog func(text string)

	// OnAddr, when set, receives ipaddr answers.
	OnAddr func(addr string)
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, post Poster, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{client: client, post: post, log: log}
}

// Start routes messages until the connection ends, then reports the loss
// to the session.
func (h *Handler) Start() {
	for env := range h.client.Incoming() {
		h.Dispatch(env)
	}
	h.post.Post(negotiation.SignalingClosed{Err: h.client.Err()})
}

// Dispatch translates one envelope.
func (h *Handler) Dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.EventCreated:
		h.post.Post(negotiation.RoomCreated{Room: env.Room, ClientID: env.ClientID})

	case protocol.EventJoined:
		h.post.Post(negotiation.RoomJoined{Room: env.Room, ClientID: env.ClientID})

	case protocol.EventFull:
		h.post.Post(negotiation.RoomFull{Room: env.Room})

	case protocol.EventReady:
		h.post.Post(negotiation.PeerReady{})

	case protocol.EventPeerLeft:
		h.post.Post(negotiation.PeerLeft{})

	case protocol.EventMessage:
		sig, err := protocol.DecodeSignal(env.Payload)
		if err != nil {
			h.log.Warn("dropping relayed message", "err", err)
			return
		}
		h.post.Post(negotiation.RemoteSignal{Signal: sig})

	case protocol.EventLog:
		h.log.Debug("server", "text", env.Text)
		if h.OnLog != nil {
			h.OnLog(env.Text)
		}

	case protocol.EventIPAddr:
		if h.OnAddr != nil {
			h.OnAddr(env.Addr)
		}

	default:
		h.log.Debug("ignoring server event", "type", env.Type)
	}
}
