package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/pairlink/cli/internal/config"
	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/cli/internal/render"
	"github.com/BioHazard786/pairlink/cli/internal/signaling"
	"github.com/BioHazard786/pairlink/cli/internal/ui"
	"github.com/BioHazard786/pairlink/cli/internal/webrtc"
	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/version"
)

var (
	flagServer      string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagRelay       string
	flagVideoPort   int
	flagAudioPort   int
	flagNoMedia     bool
	flagSend        string
	flagOut         string
	flagMaxTransfer int
	flagPlain       bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Create or join a room and connect to its other member",
	Long: `Create or join a room on the signaling server and negotiate a WebRTC
connection with the other member. Without a room name the server picks one.

Examples:
  pairlink join
  pairlink join brave-otter-lantern --send photo.jpg
  pairlink join r1 --video-port 5004 --audio-port 5006
  pairlink join r1 --no-media --relay always`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var room string
		if len(args) == 1 {
			room = args[0]
		}

		cfg, err := config.Load(config.Options{
			File:        flagConfig,
			Server:      flagServer,
			STUNServer:  flagSTUN,
			TURNServer:  flagTURN,
			TURNUser:    flagTURNUser,
			TURNPass:    flagTURNPass,
			Relay:       flagRelay,
			VideoPort:   flagVideoPort,
			AudioPort:   flagAudioPort,
			NoMedia:     flagNoMedia,
			OutDir:      flagOut,
			MaxTransfer: flagMaxTransfer,
		})
		if err != nil {
			return err
		}
		if cfg.LogLevel != "" {
			logging.Init(logging.ParseLevel(cfg.LogLevel, slog.LevelError))
		}
		if flagSend != "" {
			if _, err := os.Stat(flagSend); err != nil {
				return fmt.Errorf("--send: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return joinRoom(ctx, cfg, room)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "signaling server WebSocket URL")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.StringVar(&flagRelay, "relay", "", "relay mode: auto, always or never")
	f.IntVar(&flagVideoPort, "video-port", 0, "local UDP port receiving H264 RTP")
	f.IntVar(&flagAudioPort, "audio-port", 0, "local UDP port receiving Opus RTP")
	f.BoolVar(&flagNoMedia, "no-media", false, "connect without local media")
	f.StringVar(&flagSend, "send", "", "PNG or JPEG to send once the channel opens")
	f.StringVarP(&flagOut, "out", "o", "", "directory for received frames")
	f.IntVar(&flagMaxTransfer, "max-transfer", 0, "largest accepted transfer in bytes")
	f.BoolVar(&flagPlain, "plain", false, "print plain status lines instead of the live view")
	rootCmd.AddCommand(joinCmd)
}

func newDisplay(onQuit func()) ui.Display {
	if flagPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return ui.NewPlainStatus(os.Stdout)
	}
	v := ui.NewStatusView(os.Stdout, onQuit)
	v.Start()
	return v
}

func joinRoom(ctx context.Context, cfg *config.Config, room string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := slog.Default()
	started := time.Now()

	sink, err := render.NewFileSink(cfg.OutDir)
	if err != nil {
		return err
	}

	client, err := signaling.Dial(ctx, cfg.Server, log)
	if err != nil {
		return err
	}

	display := newDisplay(cancel)
	tracker := &statusTracker{next: display}

	hostname, _ := os.Hostname()
	ctrl := webrtc.NewControl(webrtc.DeviceInfoPayload{
		DeviceName:    hostname,
		DeviceVersion: version.Version,
	}, log)

	link := newPeerLink(ctx, linkConfig{
		control:     ctrl,
		sink:        sink,
		display:     display,
		maxTransfer: cfg.MaxTransfer,
		sendPath:    flagSend,
		log:         log,
	})

	turnUser, turnPass := cfg.GetTURNCredentials()
	factory := webrtc.NewFactory(webrtc.Config{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    turnUser,
		TURNPass:    turnPass,
		ForceRelay:  cfg.ForceRelay(),
		OnChannel:   link.attach,
		Logger:      log,
	})

	var media negotiation.MediaSource = webrtc.NoMedia{}
	if !cfg.NoMedia {
		media = &webrtc.RTPSource{VideoAddr: cfg.VideoAddr(), AudioAddr: cfg.AudioAddr(), Logger: log}
	}

	session := negotiation.NewSession(negotiation.Config{
		Room:       room,
		Channels:   []string{webrtc.ControlLabel, link.label()},
		Transports: factory,
		Media:      media,
		Signaler:   client,
		Status:     tracker,
		Logger:     log,
	})

	handler := signaling.NewHandler(client, session, log)
	handler.OnLog = display.Log
	go handler.Start()

	runErr := session.Run(ctx)
	display.Stop()

	last := tracker.last()
	summary := ui.SessionSummary{
		Room:     last.Room,
		Role:     last.Role.String(),
		State:    last.State.String(),
		Sent:     int(link.stats.sent.Load()),
		Received: int(link.stats.received.Load()),
		Bytes:    link.stats.bytes.Load(),
		Duration: time.Since(started),
		Err:      runErr,
	}
	if peer, ok := ctrl.PeerDevice(); ok {
		summary.Peer = fmt.Sprintf("%s (%s)", peer.DeviceName, peer.DeviceVersion)
	}
	fmt.Println()
	ui.RenderSessionSummary(summary)

	switch {
	case errors.Is(runErr, negotiation.ErrRoomFull):
		return fmt.Errorf("room %s is full", last.Room)
	case negotiation.IsMediaUnavailable(runErr):
		return fmt.Errorf("local media unavailable: %w", runErr)
	}
	return runErr
}
