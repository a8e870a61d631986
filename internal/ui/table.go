package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/mesh"
)

// ParticipantRow is one remote participant as shown in the call view.
type ParticipantRow struct {
	ID     string
	State  mesh.State
	Remote mesh.MediaState
	// Known is false until the peer has announced its media state.
	Known bool
	// Receiving lists the media kinds whose remote tracks have arrived.
	Receiving []media.Kind
}

// ParticipantTable renders the remote participants of a call.
func ParticipantTable(rows []ParticipantRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for others to join...")
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			ShortID(r.ID),
			stateLabel(r.State),
			mediaFlags(r),
			receiving(r.Receiving),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Connection", "Media", "Receiving").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

func stateLabel(s mesh.State) string {
	switch s {
	case mesh.StateConnected:
		return SuccessStyle.Render(s.String())
	case mesh.StateFailed:
		return ErrorStyle.Render(s.String())
	default:
		return WarningStyle.Render(s.String())
	}
}

func mediaFlags(r ParticipantRow) string {
	if !r.Known {
		return MutedStyle.Render("?")
	}
	var parts []string
	parts = append(parts, flag(IconCamera, r.Remote.Video))
	parts = append(parts, flag(IconMic, r.Remote.Audio))
	if r.Remote.Screen {
		parts = append(parts, IconScreen)
	}
	return strings.Join(parts, " ")
}

func receiving(kinds []media.Kind) string {
	if len(kinds) == 0 {
		return MutedStyle.Render("-")
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func flag(icon string, on bool) string {
	if on {
		return icon
	}
	return icon + IconOff
}

// ShortID trims a participant id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RoomInfoView renders the box printed before the call starts.
func RoomInfoView(roomKey, link string) string {
	content := fmt.Sprintf("%s Joining call\n\n%s Room:  %s",
		IconRoom,
		IconPeer, BoldStyle.Foreground(Primary).Render(roomKey),
	)
	if link != "" {
		content += fmt.Sprintf("\n%s Link:  %s", IconLink, MutedStyle.Render(link))
	}
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(roomKey, link string) {
	fmt.Println(RoomInfoView(roomKey, link))
}
