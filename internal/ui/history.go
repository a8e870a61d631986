package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/jayramgit94/Zoom/internal/history"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderHistory writes past meetings as a table, newest first.
func RenderHistory(w io.Writer, meetings []history.Meeting, now time.Time) {
	if len(meetings) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No meetings yet."))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.AppendHeader(table.Row{"#", "Room", "Joined", "Ago"})
	for i, m := range meetings {
		t.AppendRow(table.Row{
			i + 1,
			m.RoomKey,
			m.Timestamp.Local().Format("2006-01-02 15:04"),
			ago(now.Sub(m.Timestamp)),
		})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(meetings)})
	t.Render()
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
