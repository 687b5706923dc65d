// Package signaling is the peer side of the relay protocol: a WebSocket
// connection to the server and a handler that turns server events into
// negotiation events.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/pairlink/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 64 * 1024
	bufferSize       = 64
)

// ErrClosed is returned by sends after Close.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling server. It
// implements negotiation.Signaler.
type Client struct {
	conn     *websocket.Conn
	incoming chan *protocol.Envelope
	outgoing chan *protocol.Envelope
	done     chan struct{}
	written  chan struct{}
	log      *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	readErr   error
}

// Dial establishes the WebSocket connection to the server and starts the
// read and write pumps.
func Dial(ctx context.Context, serverURL string, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *protocol.Envelope, bufferSize),
		outgoing: make(chan *protocol.Envelope, bufferSize),
		done:     make(chan struct{}),
		written:  make(chan struct{}),
		log:      log.With("server", u.Host),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// readPump reads envelopes until the connection fails. Frames that are not
// valid envelopes are skipped.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed frame from server", "err", err)
			continue
		}

		select {
		case c.incoming <- &env:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued envelopes and sends periodic pings. On Close it
// flushes what is already queued before the close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.written)
	}()

	for {
		select {
		case env := <-c.outgoing:
			if err := c.write(env); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case env := <-c.outgoing:
			if err := c.write(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(env *protocol.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *Client) enqueue(env *protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.written:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.written:
		return ErrClosed
	}
}

// JoinRoom asks the server to create or join room. An empty room lets the
// server pick a name.
func (c *Client) JoinRoom(room string) error {
	return c.enqueue(&protocol.Envelope{Type: protocol.EventCreateOrJoin, Room: room})
}

// Send relays sig to the room peer.
func (c *Client) Send(sig protocol.Signal) error {
	env, err := protocol.NewMessage(sig)
	if err != nil {
		return err
	}
	return c.enqueue(env)
}

// RequestIPAddr asks the server for its diagnostic address. The answer
// arrives as an ipaddr event.
func (c *Client) RequestIPAddr() error {
	return c.enqueue(&protocol.Envelope{Type: protocol.EventIPAddr})
}

// IPAddr requests the server address and waits for the answer. It reads
// Incoming directly, so it must not be used while a Handler is running.
func (c *Client) IPAddr(ctx context.Context) (string, error) {
	if err := c.RequestIPAddr(); err != nil {
		return "", err
	}
	for {
		select {
		case env, ok := <-c.incoming:
			if !ok {
				return "", fmt.Errorf("waiting for ipaddr: %w", c.closedErr())
			}
			if env.Type == protocol.EventIPAddr {
				return env.Addr, nil
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Incoming returns the channel of envelopes from the server. It is closed
// when the connection ends.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Err returns why the connection ended, or nil after a local Close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Close flushes queued envelopes and closes the connection. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.written
	})
	return nil
}
