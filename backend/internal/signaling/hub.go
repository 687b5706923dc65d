package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/BioHazard786/pairlink/internal/protocol"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAddrLookup replaces the host address lookup used for ipaddr requests.
func WithAddrLookup(fn func() (string, error)) Option {
	return func(h *Hub) {
		if fn != nil {
			h.lookupAddr = fn
		}
	}
}

type inbound struct {
	client *Client
	env    *protocol.Envelope
}

// Hub is the central brain of the signaling server.
// It owns every connected client and performs all room mutations from the
// single goroutine running Run.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	registry *Registry
	clients  map[string]*Client

	connected  atomic.Int64
	lookupAddr func() (string, error)
	metrics    *metrics
	log        *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		done:       make(chan struct{}),
		registry:   NewRegistry(),
		clients:    make(map[string]*Client),
		lookupAddr: FirstIPv4,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the hub's room registry for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach hands a new client to the reactor. It reports false when the hub
// is no longer running.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(c *Client, env *protocol.Envelope) bool {
	select {
	case h.inbound <- inbound{client: c, env: env}:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// On return every client's send channel is closed.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for _, c := range h.clients {
			h.remove(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c.ID] = c
			h.connected.Add(1)
			h.log.Debug("client registered", "client", c.ID, "remote", c.remoteAddr())

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; ok {
				h.log.Debug("client unregistered", "client", c.ID)
				h.remove(c)
			}

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			h.handle(in.client, in.env)
		}
	}
}

func (h *Hub) handle(c *Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.EventCreateOrJoin:
		h.createOrJoin(c, env.Room)

	case protocol.EventIPAddr:
		addr, err := h.lookupAddr()
		if err != nil {
			h.log.Warn("ipaddr lookup failed", "err", err)
			h.logTo(c, "No IPv4 address available on the server")
			return
		}
		h.send(c, &protocol.Envelope{Type: protocol.EventIPAddr, Addr: addr})

	case protocol.EventMessage:
		h.relay(c, env)

	default:
		h.log.Debug("unknown event", "client", c.ID, "type", env.Type)
		h.logTo(c, fmt.Sprintf("Unknown event %q", env.Type))
	}
}

func (h *Hub) createOrJoin(c *Client, room string) {
	if room == "" {
		name, err := GenerateRoomName(h.registry.Exists)
		if err != nil {
			h.log.Error("room name generation failed", "err", err)
			h.logTo(c, "Could not generate a room name")
			return
		}
		room = name
	}

	h.logTo(c, fmt.Sprintf("Received request to create or join room %s", room))

	join, err := h.registry.RequestJoin(c.ID, room)
	if err != nil {
		if errors.Is(err, ErrAlreadyInRoom) {
			h.log.Info("join ignored", "client", c.ID, "room", join.Room, "err", err)
			h.logTo(c, fmt.Sprintf("Already in room %s", join.Room))
			return
		}
		h.log.Warn("join rejected", "client", c.ID, "err", err)
		h.logTo(c, err.Error())
		return
	}
	h.metrics.join(join.Result)

	switch join.Result {
	case JoinCreated:
		h.log.Info("room created", "room", room, "client", c.ID)
		h.logTo(c, fmt.Sprintf("Room %s now has 1 client(s)", room))
		h.send(c, &protocol.Envelope{Type: protocol.EventCreated, Room: room, ClientID: c.ID})

	case JoinJoined:
		h.log.Info("room joined", "room", room, "client", c.ID)
		h.logTo(c, fmt.Sprintf("Room %s now has %d client(s)", room, len(join.Ready)))
		h.send(c, &protocol.Envelope{Type: protocol.EventJoined, Room: room, ClientID: c.ID})
		for _, id := range join.Ready {
			if member, ok := h.clients[id]; ok {
				h.send(member, &protocol.Envelope{Type: protocol.EventReady, Room: room})
			}
		}

	case JoinFull:
		h.log.Info("room full", "room", room, "client", c.ID)
		h.send(c, &protocol.Envelope{Type: protocol.EventFull, Room: room})
	}
}

func (h *Hub) relay(c *Client, env *protocol.Envelope) {
	room, peer := h.registry.Peer(c.ID)
	if room == "" {
		h.metrics.drop()
		h.logTo(c, "Not in a room, message dropped")
		return
	}
	target, ok := h.clients[peer]
	if peer == "" || !ok {
		h.metrics.drop()
		h.logTo(c, fmt.Sprintf("No peer in room %s, message dropped", room))
		return
	}

	h.log.Debug("relaying message", "room", room, "from", c.ID, "to", peer)
	h.metrics.relay()
	h.send(target, &protocol.Envelope{Type: protocol.EventMessage, Room: room, Payload: env.Payload})
}

func (h *Hub) logTo(c *Client, text string) {
	h.send(c, &protocol.Envelope{Type: protocol.EventLog, Text: text})
}

// send queues env for c without blocking the reactor. A client whose
// buffer is full is dropped.
func (h *Hub) send(c *Client, env *protocol.Envelope) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- env:
	default:
		h.log.Warn("client send buffer full, dropping", "client", c.ID)
		h.remove(c)
	}
}

// remove forgets c, closes its send channel and evicts it from its room.
// The member left behind stays in the room and may be joined by a new peer.
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.connected.Add(-1)
	close(c.Send)

	room, remaining, ok := h.registry.Leave(c.ID)
	if !ok {
		return
	}
	h.log.Info("client left room", "room", room, "client", c.ID)
	if remaining == "" {
		return
	}
	if peer, ok := h.clients[remaining]; ok {
		h.logTo(peer, fmt.Sprintf("Peer %s left room %s", c.ID, room))
		h.send(peer, &protocol.Envelope{Type: protocol.EventPeerLeft, Room: room})
	}
}
