package transfer

import (
	"fmt"
	"strconv"
	"sync"
)

// Receiver reassembles chunked transfers from one channel. At most one
// transfer is active; a new length frame discards the one in flight.
type Receiver struct {
	max        int
	onComplete func([]byte)

	mu       sync.Mutex
	buf      []byte
	received int
	active   bool

	// OnProgress, when set, is called after every accepted binary frame.
	OnProgress func(received, expected int)
}

// NewReceiver returns a receiver that rejects declared lengths above max
// (DefaultMaxTransferSize when max <= 0) and hands each completed payload to
// onComplete exactly once.
func NewReceiver(max int, onComplete func([]byte)) *Receiver {
	if max <= 0 {
		max = DefaultMaxTransferSize
	}
	return &Receiver{max: max, onComplete: onComplete}
}

// HandleMessage consumes one frame. Errors describe frames that were
// rejected; the receiver stays usable after any of them.
func (r *Receiver) HandleMessage(isString bool, data []byte) error {
	if isString {
		return r.handleLength(string(data))
	}
	return r.handleChunk(data)
}

func (r *Receiver) handleLength(text string) error {
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return WrapError("receive", ErrInvalidLength, strconv.Quote(text))
	}

	r.mu.Lock()
	var interrupted error
	if r.active {
		interrupted = WrapError("receive", ErrTransferInterrupted,
			fmt.Sprintf("discarded %d of %d bytes", r.received, len(r.buf)))
		r.reset()
	}
	if n > r.max {
		r.mu.Unlock()
		overflow := WrapError("receive", ErrTransferOverflow, fmt.Sprintf("declared %d bytes, limit %d", n, r.max))
		if interrupted != nil {
			return fmt.Errorf("%w; %w", overflow, interrupted)
		}
		return overflow
	}

	if n == 0 {
		r.mu.Unlock()
		r.complete([]byte{})
		return interrupted
	}

	r.buf = make([]byte, n)
	r.received = 0
	r.active = true
	r.mu.Unlock()
	return interrupted
}

func (r *Receiver) handleChunk(data []byte) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return NewError("receive", ErrNoActiveTransfer)
	}

	expected := len(r.buf)
	if r.received+len(data) > expected {
		details := fmt.Sprintf("%d bytes beyond declared %d", r.received+len(data)-expected, expected)
		r.reset()
		r.mu.Unlock()
		return WrapError("receive", ErrDataCorruption, details)
	}

	copy(r.buf[r.received:], data)
	r.received += len(data)
	received := r.received

	var done []byte
	if received == expected {
		done = r.buf
		r.reset()
	}
	r.mu.Unlock()

	if r.OnProgress != nil {
		r.OnProgress(received, expected)
	}
	if done != nil {
		r.complete(done)
	}
	return nil
}

func (r *Receiver) complete(payload []byte) {
	if r.onComplete != nil {
		r.onComplete(payload)
	}
}

// reset returns to idle. Callers hold r.mu.
func (r *Receiver) reset() {
	r.buf = nil
	r.received = 0
	r.active = false
}

// Progress reports the active transfer's state.
func (r *Receiver) Progress() (received, expected int, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, len(r.buf), r.active
}
