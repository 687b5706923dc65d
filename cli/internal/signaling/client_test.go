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

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/protocol"
)

// fakeServer records what clients send and lets tests push frames back.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	received chan protocol.Envelope
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		received: make(chan protocol.Envelope, 16),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			fs.received <- env
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) conn() *websocket.Conn {
	fs.t.Helper()
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no connection")
		return nil
	}
}

func (fs *fakeServer) next() protocol.Envelope {
	fs.t.Helper()
	select {
	case env := <-fs.received:
		return env
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no envelope received")
		return protocol.Envelope{}
	}
}

type poster struct {
	events chan negotiation.Event
}

func newPoster() *poster { return &poster{events: make(chan negotiation.Event, 16)} }

func (p *poster) Post(ev negotiation.Event) bool {
	p.events <- ev
	return true
}

func (p *poster) next(t *testing.T) negotiation.Event {
	t.Helper()
	select {
	case ev := <-p.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event posted")
		return nil
	}
}

func dial(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), fs.url(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestJoinAndSend(t *testing.T) {
	fs := newFakeServer(t)
	c := dial(t, fs)

	require.NoError(t, c.JoinRoom("r1"))
	env := fs.next()
	assert.Equal(t, protocol.EventCreateOrJoin, env.Type)
	assert.Equal(t, "r1", env.Room)

	require.NoError(t, c.Send(protocol.Offer("v=0")))
	env = fs.next()
	assert.Equal(t, protocol.EventMessage, env.Type)
	sig, err := protocol.DecodeSignal(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindOffer, sig.Kind)
	assert.Equal(t, "v=0", sig.Description.SDP)
}

func TestCloseFlushesQueuedSignals(t *testing.T) {
	fs := newFakeServer(t)
	c := dial(t, fs)

	require.NoError(t, c.Send(protocol.Bye()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	env := fs.next()
	assert.JSONEq(t, `"bye"`, string(env.Payload))

	assert.ErrorIs(t, c.Send(protocol.Bye()), ErrClosed)
	assert.ErrorIs(t, c.JoinRoom("r1"), ErrClosed)
	assert.NoError(t, c.Err())
}

func TestHandlerTranslatesEvents(t *testing.T) {
	fs := newFakeServer(t)
	c := dial(t, fs)
	server := fs.conn()

	p := newPoster()
	h := NewHandler(c, p, logging.Discard())
	logs := make(chan string, 4)
	h.OnLog = func(text string) { logs <- text }
	go h.Start()

	offer, err := json.Marshal(protocol.Offer("sdp"))
	require.NoError(t, err)
	frames := []protocol.Envelope{
		{Type: protocol.EventCreated, Room: "r1", ClientID: "a"},
		{Type: protocol.EventLog, Text: "Room r1 now has 1 client(s)"},
		{Type: protocol.EventMessage, Payload: json.RawMessage(`{"type":"nonsense"}`)},
		{Type: protocol.EventReady},
		{Type: protocol.EventMessage, Payload: offer},
		{Type: protocol.EventPeerLeft, Room: "r1"},
		{Type: protocol.EventFull, Room: "r1"},
	}
	for _, f := range frames {
		require.NoError(t, server.WriteJSON(f))
	}

	assert.Equal(t, negotiation.RoomCreated{Room: "r1", ClientID: "a"}, p.next(t))
	assert.Equal(t, negotiation.PeerReady{}, p.next(t))
	ev, ok := p.next(t).(negotiation.RemoteSignal)
	require.True(t, ok)
	assert.Equal(t, protocol.KindOffer, ev.Signal.Kind)
	assert.Equal(t, negotiation.PeerLeft{}, p.next(t))
	assert.Equal(t, negotiation.RoomFull{Room: "r1"}, p.next(t))
	assert.Equal(t, "Room r1 now has 1 client(s)", <-logs)

	server.Close()
	closed, ok := p.next(t).(negotiation.SignalingClosed)
	require.True(t, ok)
	assert.Error(t, closed.Err)
}

func TestIPAddr(t *testing.T) {
	fs := newFakeServer(t)
	c := dial(t, fs)
	server := fs.conn()

	go func() {
		env := <-fs.received
		if env.Type == protocol.EventIPAddr {
			server.WriteJSON(protocol.Envelope{Type: protocol.EventLog, Text: "noise"})
			server.WriteJSON(protocol.Envelope{Type: protocol.EventIPAddr, Addr: "10.0.0.7"})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr, err := c.IPAddr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", addr)
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", logging.Discard())
	assert.Error(t, err)
}
