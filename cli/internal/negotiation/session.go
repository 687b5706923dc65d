package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/pairlink/internal/protocol"
)

// LocalMedia is an acquired set of local tracks. Stop releases them and is
// safe to call more than once.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// MediaSource acquires local media.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// Transport is a peer connection owned by one session. Close is idempotent.
type Transport interface {
	AttachMedia(LocalMedia) error
	OpenChannel(label string) error
	CreateOffer() (protocol.SessionDescription, error)
	CreateAnswer() (protocol.SessionDescription, error)
	SetRemoteDescription(protocol.SessionDescription) error
	AddICECandidate(protocol.Candidate) error
	Close() error
}

// TransportObserver receives transport callbacks. Implementations must not
// block.
type TransportObserver interface {
	OnLocalCandidate(protocol.Candidate)
	OnChannelState(label string, open bool)
	OnConnectionState(state string)
}

// TransportFactory creates a Transport reporting to observer.
type TransportFactory interface {
	NewTransport(observer TransportObserver) (Transport, error)
}

// Signaler is the session-scoped signaling connection.
type Signaler interface {
	JoinRoom(room string) error
	Send(sig protocol.Signal) error
	Close() error
}

// Config wires a Session's collaborators.
type Config struct {
	Room       string
	Channels   []string
	Transports TransportFactory
	Media      MediaSource
	Signaler   Signaler
	Status     StatusSink
	Logger     *slog.Logger
}

// Session owns a Machine and the resources its effects act on. All state
// changes happen on the goroutine running Run; callbacks only Post events.
type Session struct {
	cfg     Config
	machine *Machine
	log     *slog.Logger

	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	closed bool

	ctx       context.Context
	transport Transport
	gen       int
	media     LocalMedia
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Status == nil {
		cfg.Status = StatusFunc(func(Status) {})
	}
	return &Session{
		cfg:     cfg,
		machine: NewMachine(),
		log:     cfg.Logger,
		wake:    make(chan struct{}, 1),
	}
}

// State returns the machine's state. Only safe once Run has returned.
func (s *Session) State() State {
	return s.machine.State()
}

// Post queues ev for the session loop without blocking. It reports false
// once the session has finished.
func (s *Session) Post(ev Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close asks the session to tear down.
func (s *Session) Close() {
	s.Post(Teardown{})
}

// Run joins the configured room and processes events until the session
// ends. Cancelling ctx tears the session down. The returned error is nil
// for a normal close.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx

	s.Post(Start{Room: s.cfg.Room})
	for {
		ev, ok := s.next(ctx)
		if !ok {
			ev = Teardown{}
		}
		s.intercept(ev)

		if done, err := s.apply(s.machine.Step(ev)); done {
			s.finish()
			return err
		}
	}
}

func (s *Session) next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// intercept records resources carried by events before the machine sees them.
func (s *Session) intercept(ev Event) {
	if ev, ok := ev.(MediaAcquired); ok && ev.Media != nil {
		s.media = ev.Media
	}
}

// finish stops accepting events and releases media that arrived too late to
// be processed.
func (s *Session) finish() {
	s.mu.Lock()
	s.closed = true
	left := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, ev := range left {
		if ev, ok := ev.(MediaAcquired); ok && ev.Media != nil {
			ev.Media.Stop()
		}
	}
}

func (s *Session) apply(effects []Effect) (bool, error) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case JoinRoom:
			if err := s.cfg.Signaler.JoinRoom(eff.Room); err != nil {
				s.fail(OpJoinRoom, err)
			}

		case SendSignal:
			if err := s.cfg.Signaler.Send(eff.Signal); err != nil {
				s.fail(OpSendSignal, err)
			}

		case AcquireMedia:
			go s.acquire()

		case CreateTransport:
			if err := s.createTransport(eff.Initiator); err != nil {
				s.fail(OpCreateTransport, err)
				continue
			}
			s.gen = eff.Gen
			s.Post(TransportCreated{Gen: s.gen})

		case CreateOffer:
			if s.transport == nil {
				s.fail(OpCreateOffer, ErrNoTransport)
				continue
			}
			desc, err := s.transport.CreateOffer()
			if err != nil {
				s.fail(OpCreateOffer, err)
				continue
			}
			s.Post(LocalDescriptionReady{Desc: desc, Gen: s.gen})

		case CreateAnswer:
			if s.transport == nil {
				s.fail(OpCreateAnswer, ErrNoTransport)
				continue
			}
			desc, err := s.transport.CreateAnswer()
			if err != nil {
				s.fail(OpCreateAnswer, err)
				continue
			}
			s.Post(LocalDescriptionReady{Desc: desc, Gen: s.gen})

		case ApplyRemote:
			if s.transport == nil {
				s.fail(OpSetRemote, ErrNoTransport)
				continue
			}
			if err := s.transport.SetRemoteDescription(eff.Desc); err != nil {
				s.fail(OpSetRemote, err)
				continue
			}
			s.Post(RemoteApplied{Kind: eff.Desc.Type, Gen: s.gen})

		case AddCandidate:
			if s.transport == nil {
				s.fail(OpAddCandidate, ErrNoTransport)
				continue
			}
			if err := s.transport.AddICECandidate(eff.Candidate); err != nil {
				s.fail(OpAddCandidate, err)
			}

		case CloseTransport:
			if s.transport != nil {
				if err := s.transport.Close(); err != nil {
					s.log.Debug("close transport", "err", err)
				}
				s.transport = nil
			}

		case StopMedia:
			if s.media != nil {
				s.media.Stop()
			}

		case CloseSignaling:
			if err := s.cfg.Signaler.Close(); err != nil {
				s.log.Debug("close signaling", "err", err)
			}

		case ReportStatus:
			s.log.Debug("status", "state", eff.Status.State, "room", eff.Status.Room, "note", eff.Status.Note)
			s.cfg.Status.Status(eff.Status)

		case ReportError:
			s.log.Warn("negotiation error", "state", s.machine.State(), "err", eff.Err)
			s.cfg.Status.Status(Status{
				State: s.machine.State(),
				Role:  s.machine.Role(),
				Room:  s.machine.Room(),
				Err:   eff.Err,
			})

		case Finish:
			return true, eff.Err
		}
	}
	return false, nil
}

func (s *Session) fail(op string, err error) {
	s.Post(OperationFailed{Op: op, Err: err})
}

func (s *Session) acquire() {
	media, err := s.cfg.Media.Acquire(s.ctx)
	if err != nil {
		s.Post(MediaFailed{Err: err})
		return
	}
	if !s.Post(MediaAcquired{Media: media}) {
		media.Stop()
	}
}

func (s *Session) createTransport(initiator bool) error {
	t, err := s.cfg.Transports.NewTransport(s)
	if err != nil {
		return err
	}
	if s.media != nil {
		if err := t.AttachMedia(s.media); err != nil {
			t.Close()
			return fmt.Errorf("attach media: %w", err)
		}
	}
	if initiator {
		for _, label := range s.cfg.Channels {
			if err := t.OpenChannel(label); err != nil {
				t.Close()
				return fmt.Errorf("open channel %s: %w", label, err)
			}
		}
	}
	s.transport = t
	return nil
}

// OnLocalCandidate implements TransportObserver.
func (s *Session) OnLocalCandidate(c protocol.Candidate) {
	s.Post(LocalCandidate{Candidate: c})
}

// OnChannelState implements TransportObserver.
func (s *Session) OnChannelState(label string, open bool) {
	s.Post(ChannelState{Label: label, Open: open})
}

// OnConnectionState implements TransportObserver.
func (s *Session) OnConnectionState(state string) {
	s.Post(ConnectionState{State: state})
}

// IsMediaUnavailable reports whether err ended a session for lack of media.
func IsMediaUnavailable(err error) bool {
	return errors.Is(err, ErrMediaUnavailable)
}
