package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
)

func TestStatusModelTracksSession(t *testing.T) {
	m := newStatusModel(nil)

	m.Update(statusMsg{State: negotiation.StateInitiator, Role: negotiation.RoleInitiator, Room: "r1"})
	m.Update(statusMsg{State: negotiation.StateNegotiating, Role: negotiation.RoleInitiator, Channel: "photos", ChannelOpen: true})
	m.Update(statusMsg{State: negotiation.StateConnected, Role: negotiation.RoleInitiator, Connection: "connected"})
	m.Update(logMsg("Room r1 now has 2 client(s)"))
	m.Update(progressMsg{received: 1024, expected: 4096})

	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "as initiator")
	assert.Contains(t, view, "r1")
	assert.Contains(t, view, "photos")
	assert.Contains(t, view, "server: Room r1 now has 2 client(s)")
	assert.Contains(t, view, "1.00 KB / 4.00 KB")
}

func TestStatusModelBoundsLines(t *testing.T) {
	m := newStatusModel(nil)
	for i := 0; i < 10; i++ {
		m.Update(logMsg("line"))
		m.Update(statusMsg{Err: errors.New("boom")})
	}
	assert.Len(t, m.logs, maxLogLines)
	assert.Len(t, m.errs, maxErrLines)
}

func TestStatusModelQuit(t *testing.T) {
	quit := false
	m := newStatusModel(func() { quit = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, quit)
	assert.NotContains(t, m.View(), "Press q")
}

func TestPlainStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainStatus(&buf)

	p.Status(negotiation.Status{State: negotiation.StateReceiver, Role: negotiation.RoleReceiver, Room: "r1"})
	p.Progress(100, 400)
	p.Progress(200, 400)
	p.Progress(300, 400)
	p.Frame("/tmp/frame.png")

	out := buf.String()
	assert.Contains(t, out, "state=receiver role=receiver room=r1")
	assert.Contains(t, out, "received 100 B of 400 B")
	assert.Contains(t, out, "received 200 B of 400 B")
	assert.Contains(t, out, "frame saved /tmp/frame.png")
}

func TestSessionSummaryView(t *testing.T) {
	view := SessionSummaryView(SessionSummary{
		Room:     "r1",
		Role:     "receiver",
		State:    "closed",
		Received: 2,
		Bytes:    2048,
		Duration: 2 * time.Second,
		Err:      errors.New("peer left"),
	})
	assert.Contains(t, view, "r1")
	assert.Contains(t, view, "Frames received")
	assert.Contains(t, view, "2.00 KB")
	assert.Contains(t, view, "1.00 KB/s")
	assert.Contains(t, view, "peer left")
}
