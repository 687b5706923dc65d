package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/pairlink/cli/internal/negotiation"
	"github.com/BioHazard786/pairlink/cli/internal/utils"
)

const (
	maxLogLines = 4
	maxErrLines = 3
)

// Display shows a session as it progresses. Both implementations are safe
// for concurrent use.
type Display interface {
	negotiation.StatusSink
	Log(text string)
	Progress(received, expected int)
	Frame(path string)
	Stop()
}

type (
	statusMsg   negotiation.Status
	logMsg      string
	progressMsg struct{ received, expected int }
	frameMsg    string
)

// StatusView is a live bubbletea view of one session.
type StatusView struct {
	program *tea.Program
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStatusView creates the view. onQuit is called when the user presses q
// or ctrl+c.
func NewStatusView(out io.Writer, onQuit func()) *StatusView {
	return &StatusView{
		program: tea.NewProgram(newStatusModel(onQuit), tea.WithOutput(out)),
	}
}

// Start runs the program in a goroutine
func (v *StatusView) Start() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

func (v *StatusView) Status(s negotiation.Status) { v.program.Send(statusMsg(s)) }

func (v *StatusView) Log(text string) { v.program.Send(logMsg(text)) }

func (v *StatusView) Progress(received, expected int) {
	v.program.Send(progressMsg{received: received, expected: expected})
}

func (v *StatusView) Frame(path string) { v.program.Send(frameMsg(path)) }

// Stop quits the program and waits for the final render.
func (v *StatusView) Stop() {
	v.once.Do(func() {
		v.program.Quit()
		v.wg.Wait()
	})
}

type statusModel struct {
	spinner  spinner.Model
	onQuit   func()
	quitting bool

	state      negotiation.State
	role       negotiation.Role
	room       string
	note       string
	connection string
	channels   map[string]bool
	errs       []string
	logs       []string
	received   int
	expected   int
	frames     int
	lastFrame  string
}

func newStatusModel(onQuit func()) *statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &statusModel{
		spinner:  s,
		onQuit:   onQuit,
		channels: make(map[string]bool),
	}
}

func (m *statusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.apply(negotiation.Status(msg))

	case logMsg:
		m.logs = appendBounded(m.logs, string(msg), maxLogLines)

	case progressMsg:
		m.received, m.expected = msg.received, msg.expected

	case frameMsg:
		m.frames++
		m.lastFrame = string(msg)
	}
	return m, nil
}

func (m *statusModel) apply(s negotiation.Status) {
	m.state = s.State
	m.role = s.Role
	if s.Room != "" {
		m.room = s.Room
	}
	if s.Note != "" {
		m.note = s.Note
	}
	if s.Channel != "" {
		m.channels[s.Channel] = s.ChannelOpen
	}
	if s.Connection != "" {
		m.connection = s.Connection
	}
	if s.Err != nil {
		m.errs = appendBounded(m.errs, s.Err.Error(), maxErrLines)
	}
}

func appendBounded(lines []string, line string, max int) []string {
	lines = append(lines, line)
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return lines
}

func (m *statusModel) stateIcon() string {
	switch m.state {
	case negotiation.StateConnected:
		return SuccessStyle.Render(IconConnect)
	case negotiation.StateClosed:
		return IconClosed
	case negotiation.StateUnavailable:
		return ErrorStyle.Render(IconError)
	}
	return m.spinner.View()
}

func (m *statusModel) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s %s", m.stateIcon(), TitleStyle.Render(m.state.String()))
	if m.role != negotiation.RoleNone {
		fmt.Fprintf(&b, " %s", RoleStyle.Render("as "+m.role.String()))
	}
	if m.room != "" {
		fmt.Fprintf(&b, " %s %s", IconRoom, BoldStyle.Render(m.room))
	}
	b.WriteString("\n")
	if m.note != "" {
		b.WriteString("  " + MutedStyle.Render(m.note) + "\n")
	}

	if m.connection != "" || len(m.channels) > 0 {
		fmt.Fprintf(&b, "  connection: %s", orDash(m.connection))
		labels := make([]string, 0, len(m.channels))
		for label := range m.channels {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			mark := ErrorStyle.Render("closed")
			if m.channels[label] {
				mark = SuccessStyle.Render("open")
			}
			fmt.Fprintf(&b, "  %s: %s", label, mark)
		}
		b.WriteString("\n")
	}

	if m.expected > 0 && m.received < m.expected {
		fmt.Fprintf(&b, "  %s receiving %s / %s\n", IconWaiting,
			utils.FormatSize(int64(m.received)), utils.FormatSize(int64(m.expected)))
	}
	if m.frames > 0 {
		fmt.Fprintf(&b, "  %s %d frame(s), last %s\n", IconFrame, m.frames, m.lastFrame)
	}

	for _, e := range m.errs {
		b.WriteString("  " + ErrorStyle.Render(e) + "\n")
	}
	for _, l := range m.logs {
		b.WriteString("  " + MutedStyle.Render("server: "+l) + "\n")
	}

	if !m.quitting && !m.state.Terminal() {
		b.WriteString("\n" + MutedStyle.Render("Press q to leave"))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PlainStatus prints one line per update, for output that is not a
// terminal.
type PlainStatus struct {
	mu      sync.Mutex
	out     io.Writer
	quarter int
}

func NewPlainStatus(out io.Writer) *PlainStatus {
	return &PlainStatus{out: out}
}

func (p *PlainStatus) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *PlainStatus) Status(s negotiation.Status) {
	line := fmt.Sprintf("state=%s role=%s", s.State, s.Role)
	if s.Room != "" {
		line += " room=" + s.Room
	}
	if s.Channel != "" {
		line += fmt.Sprintf(" channel=%s open=%t", s.Channel, s.ChannelOpen)
	}
	if s.Connection != "" {
		line += " connection=" + s.Connection
	}
	if s.Note != "" {
		line += fmt.Sprintf(" note=%q", s.Note)
	}
	if s.Err != nil {
		line += fmt.Sprintf(" err=%q", s.Err)
	}
	p.printf("%s", line)
}

func (p *PlainStatus) Log(text string) { p.printf("server: %s", text) }

// Progress prints at every quarter of a transfer.
func (p *PlainStatus) Progress(received, expected int) {
	if expected <= 0 {
		return
	}
	q := received * 4 / expected
	p.mu.Lock()
	changed := q != p.quarter
	p.quarter = q
	p.mu.Unlock()
	if changed && q > 0 {
		p.printf("received %s of %s", utils.FormatSize(int64(received)), utils.FormatSize(int64(expected)))
	}
}

func (p *PlainStatus) Frame(path string) { p.printf("frame saved %s", path) }

func (p *PlainStatus) Stop() {}
