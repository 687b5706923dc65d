package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/pairlink/cli/internal/transfer"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PAIRLINK_SERVER", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "PAIRLINK_OUT_DIR"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.Equal(t, DefaultOutDir, cfg.OutDir)
	assert.Equal(t, RelayAuto, cfg.Relay)
	assert.Equal(t, transfer.DefaultMaxTransferSize, cfg.MaxTransfer)
	assert.Empty(t, cfg.VideoAddr())
	assert.False(t, cfg.ForceRelay(), "auto without TURN never forces relay")
}

func TestLoadPriority(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "pairlink.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server: ws://file:1/ws
turn: turn:file.example
out: /from/file
video_port: 5004
max_transfer: 1024
`), 0o644))

	t.Setenv("TURN_SERVER", "turn:env.example")
	t.Setenv("PAIRLINK_OUT_DIR", "/from/env")

	cfg, err := Load(Options{File: file, OutDir: "/from/flag", AudioPort: 5006})
	require.NoError(t, err)

	assert.Equal(t, "ws://file:1/ws", cfg.Server)
	assert.Equal(t, "turn:env.example", cfg.TURNServer)
	assert.Equal(t, "/from/flag", cfg.OutDir)
	assert.Equal(t, 1024, cfg.MaxTransfer)
	assert.Equal(t, "127.0.0.1:5004", cfg.VideoAddr())
	assert.Equal(t, "127.0.0.1:5006", cfg.AudioAddr())
	assert.Equal(t, []string{
		"turn:env.example:3478?transport=udp",
		"turn:env.example:3478?transport=tcp",
	}, cfg.GetTURNServers())
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "not found")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unterminated"), 0o644))
	_, err = Load(Options{File: bad})
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(Options{Relay: "sometimes"})
	assert.ErrorContains(t, err, "invalid relay mode")

	_, err = Load(Options{VideoPort: 70000})
	assert.ErrorContains(t, err, "invalid video port")
}

func TestForceRelay(t *testing.T) {
	cfg := &Config{Relay: RelayAlways}
	assert.True(t, cfg.ForceRelay())

	cfg = &Config{Relay: RelayNever, shouldRelay: func() bool { return true }}
	assert.False(t, cfg.ForceRelay())

	cfg = &Config{Relay: RelayAuto, TURNServer: "turn:x", shouldRelay: func() bool { return true }}
	assert.True(t, cfg.ForceRelay())

	cfg.shouldRelay = func() bool { return false }
	assert.False(t, cfg.ForceRelay())
}
