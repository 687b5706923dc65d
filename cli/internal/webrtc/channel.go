package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Channel wraps a pion DataChannel so application handlers can be attached
// without replacing the transport's own open/close notifications.
type Channel struct {
	dc *webrtc.DataChannel

	mu      sync.Mutex
	onOpen  func()
	onClose func()
	opened  bool

	closeOnce sync.Once
}

func newChannel(dc *webrtc.DataChannel, notify func(label string, open bool)) *Channel {
	c := &Channel{dc: dc}
	dc.OnOpen(func() {
		c.mu.Lock()
		c.opened = true
		fn := c.onOpen
		c.mu.Unlock()

		notify(dc.Label(), true)
		if fn != nil {
			fn()
		}
	})
	dc.OnClose(func() {
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()

		notify(dc.Label(), false)
		if fn != nil {
			fn()
		}
	})
	return c
}

func (c *Channel) Label() string { return c.dc.Label() }

// OnOpen sets the handler run when the channel opens. If the channel is
// already open fn runs immediately on a new goroutine.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	opened := c.opened
	c.mu.Unlock()

	if opened && fn != nil {
		go fn()
	}
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// OnMessage delivers every frame in order. Text frames have isString set.
func (c *Channel) OnMessage(fn func(isString bool, data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.IsString, msg.Data)
	})
}

func (c *Channel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *Channel) SendText(s string) error { return c.dc.SendText(s) }

func (c *Channel) Send(data []byte) error { return c.dc.Send(data) }

func (c *Channel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *Channel) SetBufferedAmountLowThreshold(n uint64) {
	c.dc.SetBufferedAmountLowThreshold(n)
}

func (c *Channel) OnBufferedAmountLow(fn func()) { c.dc.OnBufferedAmountLow(fn) }

// Close closes the channel. Closing twice is a no-op.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.dc.Close()
	})
	return err
}
