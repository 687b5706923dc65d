package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ControlLabel is the data channel carrying Control messages.
const ControlLabel = "control"

const (
	MessageTypeDeviceInfo    = "device_info"
	MessageTypeFrameGeometry = "frame_geometry"
)

var ErrUnknownMessage = errors.New("unknown control message")

// Message represents all control channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DeviceInfoPayload is sent by each side when the control channel opens.
type DeviceInfoPayload struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
}

// FrameGeometryPayload announces the pixel geometry of the next transfers.
type FrameGeometryPayload struct {
	Width  int `msgpack:"width"`
	Height int `msgpack:"height"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

type binarySender interface {
	Send(data []byte) error
}

// Control handles the control channel for one session.
type Control struct {
	self DeviceInfoPayload
	log  *slog.Logger

	mu       sync.Mutex
	out      binarySender
	peer     *DeviceInfoPayload
	geometry *FrameGeometryPayload

	ready     chan struct{}
	readyOnce sync.Once
	geoSet    chan struct{}
	geoOnce   sync.Once

	// OnDeviceInfo, when set, is called with the peer's device info.
	OnDeviceInfo func(DeviceInfoPayload)
}

func NewControl(self DeviceInfoPayload, log *slog.Logger) *Control {
	if log == nil {
		log = slog.Default()
	}
	return &Control{
		self:   self,
		log:    log,
		ready:  make(chan struct{}),
		geoSet: make(chan struct{}),
	}
}

// Attach binds c to an opened or opening control channel.
func (c *Control) Attach(ch *Channel) {
	ch.OnMessage(func(isString bool, data []byte) {
		if isString {
			c.log.Debug("ignoring text frame on control channel")
			return
		}
		if err := c.HandleMessage(data); err != nil {
			c.log.Warn("control message", "err", err)
		}
	})
	ch.OnOpen(func() {
		if err := c.Bind(ch); err != nil {
			c.log.Warn("send device info", "err", err)
		}
	})
}

// Bind sets the outbound side and announces this device.
func (c *Control) Bind(out binarySender) error {
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
	return c.send(MessageTypeDeviceInfo, c.self)
}

// Ready is closed once the outbound side is bound.
func (c *Control) Ready() <-chan struct{} {
	return c.ready
}

// SendGeometry announces the geometry of the payloads about to be sent.
func (c *Control) SendGeometry(width, height int) error {
	return c.send(MessageTypeFrameGeometry, FrameGeometryPayload{Width: width, Height: height})
}

func (c *Control) send(t string, payload any) error {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return fmt.Errorf("send %s: control channel not open", t)
	}

	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return out.Send(data)
}

// HandleMessage decodes one control frame.
func (c *Control) HandleMessage(data []byte) error {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode control message: %w", err)
	}

	switch msg.Type {
	case MessageTypeDeviceInfo:
		var info DeviceInfoPayload
		if err := msg.DecodePayload(&info); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		c.mu.Lock()
		c.peer = &info
		fn := c.OnDeviceInfo
		c.mu.Unlock()
		if fn != nil {
			fn(info)
		}

	case MessageTypeFrameGeometry:
		var g FrameGeometryPayload
		if err := msg.DecodePayload(&g); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if g.Width <= 0 || g.Height <= 0 {
			return fmt.Errorf("invalid frame geometry %dx%d", g.Width, g.Height)
		}
		c.mu.Lock()
		c.geometry = &g
		c.mu.Unlock()
		c.geoOnce.Do(func() { close(c.geoSet) })

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return nil
}

// Geometry returns the latest announced geometry.
func (c *Control) Geometry() (width, height int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.geometry == nil {
		return 0, 0, false
	}
	return c.geometry.Width, c.geometry.Height, true
}

// WaitGeometry blocks until a geometry has been announced or ctx is done.
func (c *Control) WaitGeometry(ctx context.Context) (width, height int, err error) {
	select {
	case <-c.geoSet:
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
	width, height, _ = c.Geometry()
	return width, height, nil
}

// PeerDevice returns the peer's device info once received.
func (c *Control) PeerDevice() (DeviceInfoPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return DeviceInfoPayload{}, false
	}
	return *c.peer, true
}
