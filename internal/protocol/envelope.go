// Package protocol defines the signaling wire format shared by the relay
// server and the peer client.
package protocol

import "encoding/json"

// Envelope is one WebSocket text frame between a client and the relay.
type Envelope struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Addr     string          `json:"addr,omitempty"`
	Text     string          `json:"text,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Event names.
const (
	EventCreateOrJoin = "create or join"
	EventIPAddr       = "ipaddr"
	EventMessage      = "message"

	EventCreated = "created"
	EventJoined  = "joined"
	EventFull    = "full"
	EventReady   = "ready"
	EventLog     = "log"

	// EventPeerLeft tells the remaining member that its peer disconnected.
	EventPeerLeft = "peer left"
)

// NewMessage wraps a peer signal into a relayable envelope.
func NewMessage(sig Signal) (*Envelope, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: EventMessage, Payload: payload}, nil
}
