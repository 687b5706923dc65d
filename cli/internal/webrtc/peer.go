// Package webrtc implements the negotiation transport on top of pion.
package webrtc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/internal/protocol"
)

// Config describes the ICE setup and application hooks for new peers.
type Config struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// IncludeLoopback gathers loopback candidates, for same-host peers.
	IncludeLoopback bool

	// OnChannel is called for every data channel, local or remote, before
	// it opens.
	OnChannel func(*Channel)

	Logger *slog.Logger
}

// Factory creates pion peer connections. It implements
// negotiation.TransportFactory.
type Factory struct {
	cfg Config
	api *webrtc.API
	log *slog.Logger
}

func NewFactory(cfg Config) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(cfg.Logger)}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	return &Factory{
		cfg: cfg,
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		log: cfg.Logger,
	}
}

func (f *Factory) configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(f.cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: f.cfg.STUNServers})
	}
	if len(f.cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       f.cfg.TURNServers,
			Username:   f.cfg.TURNUser,
			Credential: f.cfg.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if f.cfg.ForceRelay && len(f.cfg.TURNServers) > 0 {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{ICEServers: servers, ICETransportPolicy: policy}
}

// NewTransport implements negotiation.TransportFactory.
func (f *Factory) NewTransport(observer negotiation.TransportObserver) (negotiation.Transport, error) {
	return f.NewPeer(observer)
}

// NewPeer creates a peer connection reporting to observer.
func (f *Factory) NewPeer(observer negotiation.TransportObserver) (*Peer, error) {
	pc, err := f.api.NewPeerConnection(f.configuration())
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, observer: observer, onChannel: f.cfg.OnChannel, log: f.log}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		observer.OnLocalCandidate(fromICECandidateInit(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", "state", s)
		observer.OnConnectionState(s.String())
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.log.Debug("remote data channel", "label", dc.Label())
		p.adopt(dc)
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Info("remote track", "kind", tr.Kind(), "codec", tr.Codec().MimeType)
		go drainTrack(tr)
	})
	return p, nil
}

// Peer is one pion PeerConnection. It implements negotiation.Transport.
type Peer struct {
	pc        *webrtc.PeerConnection
	observer  negotiation.TransportObserver
	onChannel func(*Channel)
	log       *slog.Logger

	mu       sync.Mutex
	channels []*Channel

	closeOnce sync.Once
}

func (p *Peer) adopt(dc *webrtc.DataChannel) *Channel {
	ch := newChannel(dc, p.observer.OnChannelState)
	p.mu.Lock()
	p.channels = append(p.channels, ch)
	p.mu.Unlock()

	if p.onChannel != nil {
		p.onChannel(ch)
	}
	return ch
}

// AttachMedia adds every local track to the connection.
func (p *Peer) AttachMedia(m negotiation.LocalMedia) error {
	for _, track := range m.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// OpenChannel creates an ordered, reliable data channel.
func (p *Peer) OpenChannel(label string) error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return err
	}
	p.adopt(dc)
	return nil
}

func (p *Peer) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return protocol.SessionDescription{Type: protocol.KindOffer, SDP: offer.SDP}, nil
}

func (p *Peer) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return protocol.SessionDescription{Type: protocol.KindAnswer, SDP: answer.SDP}, nil
}

func (p *Peer) SetRemoteDescription(d protocol.SessionDescription) error {
	var t webrtc.SDPType
	switch d.Type {
	case protocol.KindOffer:
		t = webrtc.SDPTypeOffer
	case protocol.KindAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("%w: %s is not a description", protocol.ErrUnknownSignal, d.Type)
	}
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: d.SDP})
}

func (p *Peer) AddICECandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(toICECandidateInit(c))
}

// SignalingState exposes the connection's offer/answer state.
func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

// Close closes every channel and the connection. Later calls return nil.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		channels := p.channels
		p.mu.Unlock()
		for _, ch := range channels {
			if cerr := ch.Close(); cerr != nil {
				p.log.Debug("close channel", "label", ch.Label(), "err", cerr)
			}
		}
		err = p.pc.Close()
	})
	return err
}

func fromICECandidateInit(c webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{Label: c.SDPMLineIndex, ID: c.SDPMid, Candidate: c.Candidate}
}

func toICECandidateInit(c protocol.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: c.ID, SDPMLineIndex: c.Label}
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainTrack(tr *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := tr.Read(buf); err != nil {
			return
		}
	}
}
