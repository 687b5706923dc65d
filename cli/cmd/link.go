package cmd

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/cli/internal/render"
	"github.com/BioHazard786/pairlink/cli/internal/transfer"
	"github.com/BioHazard786/pairlink/cli/internal/ui"
	"github.com/BioHazard786/pairlink/cli/internal/webrtc"
)

const (
	// geometryWait bounds how long a completed payload waits for its
	// geometry, which travels on the control channel.
	geometryWait = 2 * time.Second

	// sendMaxSide keeps sent images within the default transfer bound.
	sendMaxSide = 2048
)

type linkStats struct {
	sent     atomic.Int64
	received atomic.Int64
	bytes    atomic.Int64
}

type linkConfig struct {
	control     *webrtc.Control
	sink        *render.FileSink
	display     ui.Display
	maxTransfer int
	sendPath    string
	log         *slog.Logger
}

// peerLink attaches application handlers to the session's data channels.
type peerLink struct {
	ctx   context.Context
	cfg   linkConfig
	stats linkStats
}

func newPeerLink(ctx context.Context, cfg linkConfig) *peerLink {
	return &peerLink{ctx: ctx, cfg: cfg}
}

func (l *peerLink) label() string { return transfer.Label }

// attach is called for every data channel before it opens.
func (l *peerLink) attach(ch *webrtc.Channel) {
	switch ch.Label() {
	case webrtc.ControlLabel:
		l.cfg.control.Attach(ch)

	case transfer.Label:
		recv := transfer.NewReceiver(l.cfg.maxTransfer, l.deliver)
		recv.OnProgress = l.cfg.display.Progress
		ch.OnMessage(func(isString bool, data []byte) {
			if err := recv.HandleMessage(isString, data); err != nil {
				l.cfg.log.Warn("transfer frame rejected", "err", err)
			}
		})

		sender := transfer.NewSender(ch)
		if l.cfg.sendPath != "" {
			var once sync.Once
			ch.OnOpen(func() {
				once.Do(func() { go l.send(sender) })
			})
		}

	default:
		l.cfg.log.Debug("ignoring data channel", "label", ch.Label())
	}
}

func (l *peerLink) deliver(payload []byte) {
	l.stats.received.Add(1)
	l.stats.bytes.Add(int64(len(payload)))

	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, geometryWait)
		defer cancel()
		path, err := l.cfg.sink.Deliver(ctx, l.cfg.control, payload)
		if err != nil {
			l.cfg.log.Warn("save frame", "err", err)
			return
		}
		l.cfg.display.Frame(path)
	}()
}

func (l *peerLink) send(sender *transfer.Sender) {
	log := l.cfg.log.With("file", l.cfg.sendPath)

	select {
	case <-l.cfg.control.Ready():
	case <-l.ctx.Done():
		return
	}

	width, height, pixels, err := render.Load(l.cfg.sendPath, sendMaxSide)
	if err != nil {
		log.Error("load image", "err", err)
		return
	}
	if err := l.cfg.control.SendGeometry(width, height); err != nil {
		log.Error("announce geometry", "err", err)
		return
	}
	if err := sender.Send(l.ctx, pixels); err != nil {
		log.Error("send image", "err", err)
		return
	}
	if err := sender.Drain(l.ctx); err != nil {
		log.Warn("drain", "err", err)
	}
	l.stats.sent.Add(1)
	log.Info("image sent", "width", width, "height", height, "bytes", len(pixels))
}

// statusTracker remembers the latest session state and forwards updates.
type statusTracker struct {
	next negotiation.StatusSink

	mu     sync.Mutex
	latest negotiation.Status
}

func (t *statusTracker) Status(s negotiation.Status) {
	t.mu.Lock()
	prevRoom := t.latest.Room
	t.latest = s
	if s.Room == "" {
		t.latest.Room = prevRoom
	}
	t.mu.Unlock()
	t.next.Status(s)
}

func (t *statusTracker) last() negotiation.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}
