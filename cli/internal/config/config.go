// Package config resolves the peer client's settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/BioHazard786/pairlink/cli/internal/transfer"
	"github.com/BioHazard786/pairlink/cli/internal/utils"
)

// Default configuration values
const (
	DefaultServer = "ws://localhost:8000/ws"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
	DefaultOutDir = "."
	DefaultRelay  = RelayAuto
)

// Relay modes for ICE transport policy.
const (
	RelayAuto   = "auto"
	RelayAlways = "always"
	RelayNever  = "never"
)

// Config holds application configuration
type Config struct {
	// Server is the signaling WebSocket URL.
	Server string `yaml:"server"`

	// ICE servers for WebRTC
	STUNServer string `yaml:"stun"`
	TURNServer string `yaml:"turn"`
	TURNUser   string `yaml:"turn_user"`
	TURNPass   string `yaml:"turn_pass"`

	// Relay is one of auto, always or never.
	Relay string `yaml:"relay"`

	// RTP input ports for local media. Zero skips that track.
	VideoPort int  `yaml:"video_port"`
	AudioPort int  `yaml:"audio_port"`
	NoMedia   bool `yaml:"no_media"`

	// OutDir is where received frames are written.
	OutDir string `yaml:"out"`

	// MaxTransfer bounds the declared length of one incoming transfer.
	MaxTransfer int `yaml:"max_transfer"`

	LogLevel string `yaml:"log_level"`

	// shouldRelay is swapped in tests.
	shouldRelay func() bool
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set".
type Options struct {
	File        string
	Server      string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	Relay       string
	VideoPort   int
	AudioPort   int
	NoMedia     bool
	OutDir      string
	MaxTransfer int
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file, when Options.File is set
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{}
	if opts.File != "" {
		if err := readFile(opts.File, cfg); err != nil {
			return nil, err
		}
	}

	env := map[string]*string{
		"PAIRLINK_SERVER":  &cfg.Server,
		"STUN_SERVER":      &cfg.STUNServer,
		"TURN_SERVER":      &cfg.TURNServer,
		"TURN_USERNAME":    &cfg.TURNUser,
		"TURN_PASSWORD":    &cfg.TURNPass,
		"PAIRLINK_OUT_DIR": &cfg.OutDir,
	}
	for key, dst := range env {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	override(&cfg.Server, opts.Server)
	override(&cfg.STUNServer, opts.STUNServer)
	override(&cfg.TURNServer, opts.TURNServer)
	override(&cfg.TURNUser, opts.TURNUser)
	override(&cfg.TURNPass, opts.TURNPass)
	override(&cfg.Relay, opts.Relay)
	override(&cfg.OutDir, opts.OutDir)
	if opts.VideoPort != 0 {
		cfg.VideoPort = opts.VideoPort
	}
	if opts.AudioPort != 0 {
		cfg.AudioPort = opts.AudioPort
	}
	if opts.NoMedia {
		cfg.NoMedia = true
	}
	if opts.MaxTransfer != 0 {
		cfg.MaxTransfer = opts.MaxTransfer
	}

	fallback(&cfg.Server, DefaultServer)
	fallback(&cfg.STUNServer, DefaultSTUN)
	fallback(&cfg.OutDir, DefaultOutDir)
	fallback(&cfg.Relay, DefaultRelay)
	if cfg.MaxTransfer == 0 {
		cfg.MaxTransfer = transfer.DefaultMaxTransferSize
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fallback(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func (c *Config) validate() error {
	switch c.Relay {
	case RelayAuto, RelayAlways, RelayNever:
	default:
		return fmt.Errorf("invalid relay mode %q (want auto, always or never)", c.Relay)
	}
	if c.MaxTransfer < 0 {
		return fmt.Errorf("invalid max transfer size %d", c.MaxTransfer)
	}
	for name, port := range map[string]int{"video": c.VideoPort, "audio": c.AudioPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s port %d", name, port)
		}
	}
	return nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ForceRelay reports whether ICE should be limited to relay candidates. In
// auto mode it looks at the local interfaces.
func (c *Config) ForceRelay() bool {
	switch c.Relay {
	case RelayAlways:
		return true
	case RelayNever:
		return false
	}
	if c.TURNServer == "" {
		return false
	}
	if c.shouldRelay != nil {
		return c.shouldRelay()
	}
	return utils.ShouldForceRelay()
}

// VideoAddr returns the local UDP address for incoming video RTP, or "".
func (c *Config) VideoAddr() string { return localAddr(c.VideoPort) }

// AudioAddr returns the local UDP address for incoming audio RTP, or "".
func (c *Config) AudioAddr() string { return localAddr(c.AudioPort) }

func localAddr(port int) string {
	if port == 0 {
		return ""
	}
	return "127.0.0.1:" + strconv.Itoa(port)
}
