package transfer

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"
)

// Channel is the ordered, reliable data channel a transfer runs over.
type Channel interface {
	SendText(s string) error
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(n uint64)
	OnBufferedAmountLow(fn func())
	IsOpen() bool
}

// Sender writes chunked transfers to one channel, one transfer at a time.
type Sender struct {
	channel Channel
	busy    atomic.Bool
	low     chan struct{}

	sendTimeout time.Duration

	// OnProgress, when set, is called after every chunk.
	OnProgress func(sent, total int)
}

func NewSender(ch Channel) *Sender {
	s := &Sender{
		channel:     ch,
		low:         make(chan struct{}, 1),
		sendTimeout: SendTimeout,
	}
	ch.SetBufferedAmountLowThreshold(LowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case s.low <- struct{}{}:
		default:
		}
	})
	return s
}

// Send emits the length frame followed by payload in ChunkSize frames. A
// Send while another is running on the same channel fails with
// ErrTransferInProgress.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	if !s.busy.CompareAndSwap(false, true) {
		return NewError("send", ErrTransferInProgress)
	}
	defer s.busy.Store(false)

	if !s.channel.IsOpen() {
		return NewError("send", ErrChannelClosed)
	}
	if err := s.channel.SendText(strconv.Itoa(len(payload))); err != nil {
		return WrapError("send", err, "length frame")
	}

	total := len(payload)
	for sent := 0; sent < total; {
		if err := s.waitForWindow(ctx); err != nil {
			return err
		}
		if !s.channel.IsOpen() {
			return WrapError("send", ErrChannelClosed, strconv.Itoa(sent)+" bytes sent")
		}

		end := min(sent+ChunkSize, total)
		if err := s.channel.Send(payload[sent:end]); err != nil {
			return WrapError("send", err, "chunk at offset "+strconv.Itoa(sent))
		}
		sent = end

		if s.OnProgress != nil {
			s.OnProgress(sent, total)
		}
	}
	return nil
}

func (s *Sender) waitForWindow(ctx context.Context) error {
	for {
		buffered := s.channel.BufferedAmount()
		if buffered < HighWaterMark {
			return nil
		}

		timer := time.NewTimer(s.sendTimeout)
		select {
		case <-s.low:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if s.channel.BufferedAmount() >= buffered {
				return WrapError("send", ErrBufferTimeout, "buffer not draining")
			}
		}
	}
}

// Drain waits until the channel has flushed its buffer, the channel closes,
// ctx is done or DrainTimeout passes.
func (s *Sender) Drain(ctx context.Context) error {
	deadline := time.Now().Add(DrainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for s.channel.BufferedAmount() > 0 {
		if !s.channel.IsOpen() {
			return NewError("drain", ErrChannelClosed)
		}
		if time.Now().After(deadline) {
			return WrapError("drain", ErrBufferTimeout, strconv.FormatUint(s.channel.BufferedAmount(), 10)+" bytes buffered")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
