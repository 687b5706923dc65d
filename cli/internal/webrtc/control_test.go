package webrtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/pairlink/internal/logging"
)

type pipe struct {
	to *Control
}

func (p pipe) Send(data []byte) error {
	return p.to.HandleMessage(data)
}

func TestControlExchange(t *testing.T) {
	a := NewControl(DeviceInfoPayload{DeviceName: "alpha", DeviceVersion: "1"}, logging.Discard())
	b := NewControl(DeviceInfoPayload{DeviceName: "beta", DeviceVersion: "2"}, logging.Discard())

	var seen []string
	b.OnDeviceInfo = func(d DeviceInfoPayload) { seen = append(seen, d.DeviceName) }

	require.Error(t, a.SendGeometry(2, 2), "not bound yet")

	require.NoError(t, a.Bind(pipe{to: b}))
	require.NoError(t, b.Bind(pipe{to: a}))

	peer, ok := b.PeerDevice()
	require.True(t, ok)
	assert.Equal(t, "alpha", peer.DeviceName)
	assert.Equal(t, []string{"alpha"}, seen)

	peer, ok = a.PeerDevice()
	require.True(t, ok)
	assert.Equal(t, "beta", peer.DeviceName)

	_, _, ok = b.Geometry()
	assert.False(t, ok)

	require.NoError(t, a.SendGeometry(640, 480))
	w, h, ok := b.Geometry()
	require.True(t, ok)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestControlRejects(t *testing.T) {
	c := NewControl(DeviceInfoPayload{}, logging.Discard())

	assert.Error(t, c.HandleMessage([]byte{0xc1}))

	msg, err := NewMessage("dance", nil)
	require.NoError(t, err)
	data, err := msgpack.Marshal(msg)
	require.NoError(t, err)
	assert.ErrorIs(t, c.HandleMessage(data), ErrUnknownMessage)

	msg, err = NewMessage(MessageTypeFrameGeometry, FrameGeometryPayload{Width: 0, Height: 10})
	require.NoError(t, err)
	data, err = msgpack.Marshal(msg)
	require.NoError(t, err)
	assert.Error(t, c.HandleMessage(data))
	_, _, ok := c.Geometry()
	assert.False(t, ok)
}

func TestControlReadyAndWaitGeometry(t *testing.T) {
	a := NewControl(DeviceInfoPayload{DeviceName: "alpha"}, logging.Discard())
	b := NewControl(DeviceInfoPayload{DeviceName: "beta"}, logging.Discard())

	select {
	case <-a.Ready():
		t.Fatal("ready before bind")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, _, err := b.WaitGeometry(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, a.Bind(pipe{to: b}))
	<-a.Ready()

	done := make(chan [2]int, 1)
	go func() {
		w, h, err := b.WaitGeometry(context.Background())
		if err == nil {
			done <- [2]int{w, h}
		}
	}()
	require.NoError(t, a.SendGeometry(3, 2))

	select {
	case got := <-done:
		assert.Equal(t, [2]int{3, 2}, got)
	case <-time.After(time.Second):
		t.Fatal("geometry never arrived")
	}
}
