package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/protocol"
)

func startHub(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	hub := NewHub(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn)
		if !hub.Attach(c) {
			conn.Close()
			return
		}
		go c.WritePump()
		go c.ReadPump()
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *peer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) send(env protocol.Envelope) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(env))
}

// next returns the next envelope that is not a log event.
func (p *peer) next() protocol.Envelope {
	p.t.Helper()
	for {
		env := p.read()
		if env.Type != protocol.EventLog {
			return env
		}
	}
}

// nextLog returns the next log event, skipping everything else.
func (p *peer) nextLog() string {
	p.t.Helper()
	for {
		env := p.read()
		if env.Type == protocol.EventLog {
			return env.Text
		}
	}
}

func (p *peer) read() protocol.Envelope {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env protocol.Envelope
	require.NoError(p.t, p.conn.ReadJSON(&env))
	return env
}

func (p *peer) join(room string) protocol.Envelope {
	p.t.Helper()
	p.send(protocol.Envelope{Type: protocol.EventCreateOrJoin, Room: room})
	return p.next()
}

func TestHubCreateJoinFull(t *testing.T) {
	hub, url := startHub(t)
	a, b, c := dial(t, url), dial(t, url), dial(t, url)

	created := a.join("r1")
	assert.Equal(t, protocol.EventCreated, created.Type)
	assert.Equal(t, "r1", created.Room)
	assert.NotEmpty(t, created.ClientID)

	joined := b.join("r1")
	assert.Equal(t, protocol.EventJoined, joined.Type)
	assert.NotEqual(t, created.ClientID, joined.ClientID)

	assert.Equal(t, protocol.EventReady, a.next().Type)
	assert.Equal(t, protocol.EventReady, b.next().Type)

	full := c.join("r1")
	assert.Equal(t, protocol.EventFull, full.Type)
	assert.Equal(t, "r1", full.Room)

	assert.Equal(t, []string{created.ClientID, joined.ClientID}, hub.Registry().Members("r1"))
}

func TestHubGeneratesRoomName(t *testing.T) {
	_, url := startHub(t)
	a := dial(t, url)

	created := a.join("")
	assert.Equal(t, protocol.EventCreated, created.Type)
	assert.Len(t, strings.Split(created.Room, "-"), 3)
}

func TestHubRelayIsRoomScoped(t *testing.T) {
	_, url := startHub(t)
	a, b := dial(t, url), dial(t, url)
	c, d := dial(t, url), dial(t, url)

	a.join("r1")
	b.join("r1")
	a.next()
	b.next()

	c.join("r2")
	d.join("r2")
	c.next()
	d.next()

	offer, err := protocol.NewMessage(protocol.Offer("v=0"))
	require.NoError(t, err)
	d.send(*offer)

	bye, err := protocol.NewMessage(protocol.Bye())
	require.NoError(t, err)
	a.send(*bye)

	got := b.next()
	assert.Equal(t, protocol.EventMessage, got.Type)
	assert.JSONEq(t, `"bye"`, string(got.Payload))

	got = c.next()
	assert.Equal(t, protocol.EventMessage, got.Type)
	sig, err := protocol.DecodeSignal(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindOffer, sig.Kind)
}

func TestHubDropsMessageWithoutPeer(t *testing.T) {
	_, url := startHub(t)
	a := dial(t, url)

	bye, err := protocol.NewMessage(protocol.Bye())
	require.NoError(t, err)
	a.send(*bye)
	assert.Contains(t, a.nextLog(), "Not in a room")

	a.join("lonely")
	a.send(*bye)
	assert.Contains(t, a.nextLog(), "No peer in room lonely")
}

func TestHubLeaveAllowsReplacement(t *testing.T) {
	hub, url := startHub(t)
	a, b := dial(t, url), dial(t, url)

	created := a.join("r1")
	b.join("r1")
	a.next()
	b.next()

	require.NoError(t, a.conn.Close())
	assert.Contains(t, b.nextLog(), "Peer "+created.ClientID+" left room r1")
	left := b.next()
	assert.Equal(t, protocol.EventPeerLeft, left.Type)
	assert.Equal(t, "r1", left.Room)

	require.Eventually(t, func() bool {
		return len(hub.Registry().Members("r1")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	c := dial(t, url)
	joined := c.join("r1")
	assert.Equal(t, protocol.EventJoined, joined.Type)
	assert.Equal(t, protocol.EventReady, b.next().Type)
	assert.Equal(t, protocol.EventReady, c.next().Type)

	// The survivor now leads: its offer reaches the replacement and the
	// answer comes back.
	offer, err := protocol.NewMessage(protocol.Offer("v=0 replacement"))
	require.NoError(t, err)
	b.send(*offer)
	got := c.next()
	require.Equal(t, protocol.EventMessage, got.Type)
	sig, err := protocol.DecodeSignal(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindOffer, sig.Kind)
	assert.Equal(t, "v=0 replacement", sig.Description.SDP)

	answer, err := protocol.NewMessage(protocol.Answer("v=0 answer"))
	require.NoError(t, err)
	c.send(*answer)
	got = b.next()
	require.Equal(t, protocol.EventMessage, got.Type)
	sig, err = protocol.DecodeSignal(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindAnswer, sig.Kind)
}

func TestHubIPAddr(t *testing.T) {
	_, url := startHub(t, WithAddrLookup(func() (string, error) { return "10.1.2.3", nil }))
	a := dial(t, url)

	a.send(protocol.Envelope{Type: protocol.EventIPAddr})
	got := a.next()
	assert.Equal(t, protocol.EventIPAddr, got.Type)
	assert.Equal(t, "10.1.2.3", got.Addr)
}

func TestHubIgnoresMalformedFrames(t *testing.T) {
	_, url := startHub(t)
	a := dial(t, url)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	created := a.join("r1")
	assert.Equal(t, protocol.EventCreated, created.Type)

	raw, err := json.Marshal(protocol.Envelope{Type: "dance"})
	require.NoError(t, err)
	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, raw))
	assert.Contains(t, a.nextLog(), "Unknown event")
}
