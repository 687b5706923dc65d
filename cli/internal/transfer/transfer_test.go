package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopChannel delivers frames straight into a Receiver.
type loopChannel struct {
	recv     *Receiver
	frames   []int
	text     []string
	closed   atomic.Bool
	buffered atomic.Uint64
	lowFn    func()
	gate     chan struct{}
	errs     []error
}

func (c *loopChannel) SendText(s string) error {
	c.text = append(c.text, s)
	if err := c.recv.HandleMessage(true, []byte(s)); err != nil {
		c.errs = append(c.errs, err)
	}
	return nil
}

func (c *loopChannel) Send(data []byte) error {
	if c.gate != nil {
		<-c.gate
	}
	c.frames = append(c.frames, len(data))
	cp := append([]byte(nil), data...)
	if err := c.recv.HandleMessage(false, cp); err != nil {
		c.errs = append(c.errs, err)
	}
	return nil
}

func (c *loopChannel) BufferedAmount() uint64               { return c.buffered.Load() }
func (c *loopChannel) SetBufferedAmountLowThreshold(uint64) {}
func (c *loopChannel) OnBufferedAmountLow(fn func())        { c.lowFn = fn }
func (c *loopChannel) IsOpen() bool                         { return !c.closed.Load() }

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 63999, 64000, 64001, 200000} {
		payload := randomPayload(t, size)

		var got [][]byte
		recv := NewReceiver(0, func(b []byte) { got = append(got, b) })
		ch := &loopChannel{recv: recv}
		require.NoError(t, NewSender(ch).Send(context.Background(), payload), "size %d", size)

		require.Len(t, got, 1, "size %d", size)
		assert.True(t, bytes.Equal(payload, got[0]), "size %d", size)
		assert.Empty(t, ch.errs)

		wantFrames := (size + ChunkSize - 1) / ChunkSize
		assert.Len(t, ch.frames, wantFrames, "size %d", size)
		for i, n := range ch.frames {
			if i < wantFrames-1 {
				assert.Equal(t, ChunkSize, n)
			}
		}
		_, _, active := recv.Progress()
		assert.False(t, active)
	}
}

func TestZeroLengthIsOneTextFrame(t *testing.T) {
	calls := 0
	recv := NewReceiver(0, func(b []byte) {
		calls++
		assert.Empty(t, b)
	})
	ch := &loopChannel{recv: recv}
	require.NoError(t, NewSender(ch).Send(context.Background(), nil))
	assert.Equal(t, []string{"0"}, ch.text)
	assert.Empty(t, ch.frames)
	assert.Equal(t, 1, calls)
}

func TestLengthFiveThenOneFrame(t *testing.T) {
	var done [][]byte
	r := NewReceiver(0, func(b []byte) { done = append(done, b) })

	require.NoError(t, r.HandleMessage(true, []byte("5")))
	received, expected, active := r.Progress()
	assert.Equal(t, 0, received)
	assert.Equal(t, 5, expected)
	assert.True(t, active)

	require.NoError(t, r.HandleMessage(false, []byte("hello")))
	require.Len(t, done, 1)
	assert.Equal(t, []byte("hello"), done[0])

	assert.ErrorIs(t, r.HandleMessage(false, []byte("x")), ErrNoActiveTransfer)
	assert.Len(t, done, 1)
}

func TestReceiverProgress(t *testing.T) {
	var seen [][2]int
	r := NewReceiver(0, nil)
	r.OnProgress = func(received, expected int) { seen = append(seen, [2]int{received, expected}) }

	require.NoError(t, r.HandleMessage(true, []byte("6")))
	require.NoError(t, r.HandleMessage(false, []byte("abc")))
	require.NoError(t, r.HandleMessage(false, []byte("def")))
	assert.Equal(t, [][2]int{{3, 6}, {6, 6}}, seen)
}

func TestReceiverRejectsOversizedLength(t *testing.T) {
	r := NewReceiver(10, func([]byte) { t.Fatal("must not complete") })

	err := r.HandleMessage(true, []byte("11"))
	assert.ErrorIs(t, err, ErrTransferOverflow)
	_, expected, active := r.Progress()
	assert.False(t, active)
	assert.Equal(t, 0, expected)

	assert.ErrorIs(t, r.HandleMessage(false, []byte("x")), ErrNoActiveTransfer)
}

func TestReceiverDetectsExtraBytes(t *testing.T) {
	r := NewReceiver(0, func([]byte) { t.Fatal("must not complete") })

	require.NoError(t, r.HandleMessage(true, []byte("3")))
	err := r.HandleMessage(false, []byte("abcd"))
	assert.ErrorIs(t, err, ErrDataCorruption)
	assert.ErrorIs(t, err, ErrTransferOverflow)

	_, _, active := r.Progress()
	assert.False(t, active)
}

func TestReceiverHardResetOnNewLength(t *testing.T) {
	var done [][]byte
	r := NewReceiver(0, func(b []byte) { done = append(done, b) })

	require.NoError(t, r.HandleMessage(true, []byte("10")))
	require.NoError(t, r.HandleMessage(false, []byte("12345")))

	err := r.HandleMessage(true, []byte("3"))
	assert.ErrorIs(t, err, ErrTransferInterrupted)

	require.NoError(t, r.HandleMessage(false, []byte("xyz")))
	require.Len(t, done, 1)
	assert.Equal(t, []byte("xyz"), done[0])
}

func TestReceiverInterruptedByOversizedLength(t *testing.T) {
	r := NewReceiver(8, nil)
	require.NoError(t, r.HandleMessage(true, []byte("4")))

	err := r.HandleMessage(true, []byte("9"))
	assert.ErrorIs(t, err, ErrTransferOverflow)
	assert.ErrorIs(t, err, ErrTransferInterrupted)
	_, _, active := r.Progress()
	assert.False(t, active)
}

func TestReceiverRejectsInvalidLength(t *testing.T) {
	r := NewReceiver(0, nil)
	for _, s := range []string{"", "abc", "-1", "1.5", " 5"} {
		assert.ErrorIs(t, r.HandleMessage(true, []byte(s)), ErrInvalidLength, "%q", s)
	}
}

func TestSenderRejectsConcurrentSend(t *testing.T) {
	recv := NewReceiver(0, nil)
	ch := &loopChannel{recv: recv, gate: make(chan struct{})}
	s := NewSender(ch)

	errc := make(chan error, 1)
	go func() { errc <- s.Send(context.Background(), make([]byte, 10)) }()

	require.Eventually(t, func() bool { return s.busy.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Send(context.Background(), []byte("x")), ErrTransferInProgress)

	close(ch.gate)
	require.NoError(t, <-errc)
	require.NoError(t, s.Send(context.Background(), []byte("y")))
}

func TestSenderClosedChannel(t *testing.T) {
	ch := &loopChannel{recv: NewReceiver(0, nil)}
	ch.closed.Store(true)
	assert.ErrorIs(t, NewSender(ch).Send(context.Background(), []byte("x")), ErrChannelClosed)
}

func TestSenderWaitsForLowWaterMark(t *testing.T) {
	var mu sync.Mutex
	var done []byte
	recv := NewReceiver(0, func(b []byte) {
		mu.Lock()
		done = b
		mu.Unlock()
	})
	ch := &loopChannel{recv: recv}
	ch.buffered.Store(HighWaterMark)
	s := NewSender(ch)

	errc := make(chan error, 1)
	go func() { errc <- s.Send(context.Background(), []byte("abc")) }()

	select {
	case err := <-errc:
		t.Fatalf("send finished while buffer was full: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ch.buffered.Store(0)
	ch.lowFn()
	require.NoError(t, <-errc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("abc"), done)
}

func TestSenderHonorsContext(t *testing.T) {
	ch := &loopChannel{recv: NewReceiver(0, nil)}
	ch.buffered.Store(HighWaterMark)
	s := NewSender(ch)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Send(ctx, []byte("abc")) }()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestSenderBufferTimeout(t *testing.T) {
	ch := &loopChannel{recv: NewReceiver(0, nil)}
	ch.buffered.Store(HighWaterMark)
	s := NewSender(ch)
	s.sendTimeout = 20 * time.Millisecond

	assert.ErrorIs(t, s.Send(context.Background(), []byte("abc")), ErrBufferTimeout)
}
