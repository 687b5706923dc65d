package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
)

const (
	videoMTU = 1400
	audioMTU = 1200
)

// RTPSource acquires local media as RTP streams received on UDP ports, for
// example from a gstreamer or ffmpeg pipeline. An empty address skips that
// track.
type RTPSource struct {
	VideoAddr string
	AudioAddr string
	Logger    *slog.Logger
}

// Acquire binds the UDP listeners and starts forwarding packets to local
// tracks. A port that cannot be bound makes media unavailable.
func (s *RTPSource) Acquire(ctx context.Context) (negotiation.LocalMedia, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &RTPMedia{log: log}
	pumpCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	if s.VideoAddr != "" {
		if err := m.add(pumpCtx, s.VideoAddr, webrtc.MimeTypeH264, "video", videoMTU); err != nil {
			m.Stop()
			return nil, err
		}
	}
	if s.AudioAddr != "" {
		if err := m.add(pumpCtx, s.AudioAddr, webrtc.MimeTypeOpus, "audio", audioMTU); err != nil {
			m.Stop()
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		m.Stop()
		return nil, err
	}
	return m, nil
}

// RTPMedia is the set of tracks fed by RTPSource.
type RTPMedia struct {
	log    *slog.Logger
	tracks []webrtc.TrackLocal
	conns  []*net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (m *RTPMedia) add(ctx context.Context, addr, mime, kind string, mtu int) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s address %s: %w", kind, addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen %s on %s: %w", kind, addr, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, kind, "pairlink")
	if err != nil {
		conn.Close()
		return fmt.Errorf("%s track: %w", kind, err)
	}

	m.tracks = append(m.tracks, track)
	m.conns = append(m.conns, conn)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		pumpRTP(ctx, conn, track, mtu, kind, m.log)
	}()
	return nil
}

func (m *RTPMedia) Tracks() []webrtc.TrackLocal {
	return m.tracks
}

// Stop ends the pumps and releases the UDP ports. It is safe to call more
// than once.
func (m *RTPMedia) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		for _, c := range m.conns {
			c.Close()
		}
		m.wg.Wait()
	})
}

// pumpRTP forwards RTP packets read from conn to track until ctx is done or
// conn is closed.
func pumpRTP(ctx context.Context, conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, mtu int, kind string, log *slog.Logger) {
	buf := make([]byte, mtu)
	for {
		// keep the read unblocked with a short timeout
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				log.Error("rtp read failed", "kind", kind, "err", err)
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// ignore non-RTP
			continue
		}
		if err := track.WriteRTP(&pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Error("rtp write failed", "kind", kind, "err", err)
			return
		}
	}
}

// NoMedia is a MediaSource that yields no tracks.
type NoMedia struct{}

func (NoMedia) Acquire(context.Context) (negotiation.LocalMedia, error) {
	return emptyMedia{}, nil
}

type emptyMedia struct{}

func (emptyMedia) Tracks() []webrtc.TrackLocal { return nil }
func (emptyMedia) Stop()                       {}
