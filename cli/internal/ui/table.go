package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/pairlink/cli/internal/utils"
)

// SessionSummary is shown once a session ends.
type SessionSummary struct {
	Room     string
	Role     string
	State    string
	Peer     string
	Sent     int
	Received int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// SessionSummaryView renders the summary as a two-column table.
func SessionSummaryView(s SessionSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Options.SeparateRows = false
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.FgHiBlack}},
	})

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Room", orDash(s.Room)})
	t.AppendRow(table.Row{"Role", orDash(s.Role)})
	t.AppendRow(table.Row{"State", orDash(s.State)})
	if s.Peer != "" {
		t.AppendRow(table.Row{"Peer", s.Peer})
	}
	t.AppendRow(table.Row{"Frames sent", s.Sent})
	t.AppendRow(table.Row{"Frames received", s.Received})
	t.AppendRow(table.Row{"Bytes received", utils.FormatSize(s.Bytes)})
	t.AppendRow(table.Row{"Duration", utils.FormatTimeDuration(s.Duration)})
	if s.Duration > 0 && s.Bytes > 0 {
		t.AppendRow(table.Row{"Avg Speed", utils.FormatSpeed(s.Bytes, s.Duration)})
	}
	if s.Err != nil {
		t.AppendRow(table.Row{"Error", text.FgRed.Sprint(s.Err.Error())})
	}
	return t.Render()
}

func RenderSessionSummary(s SessionSummary) {
	fmt.Println(SessionSummaryView(s))
}
