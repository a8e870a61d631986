package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/mesh"
)

const chatHistory = 8

// Controls is the part of the mesh coordinator the call view drives.
type Controls interface {
	ToggleVideo()
	ToggleAudio()
	ToggleScreenShare()
	SendChat(text string)
	Leave()
}

type eventMsg mesh.Event

type feedClosedMsg struct{}

type chatLine struct {
	from, text string
	local      bool
}

// CallModel renders a call from the coordinator's event feed.
type CallModel struct {
	room   string
	ctl    Controls
	events <-chan mesh.Event

	self    string
	joined  bool
	peers   map[string]*ParticipantRow
	local   media.State
	chat    []chatLine
	status  string
	err     error
	leaving bool
	done    bool

	input   textinput.Model
	typing  bool
	spinner spinner.Model
}

// NewCallModel builds the call view for room.
func NewCallModel(room string, ctl Controls, events <-chan mesh.Event) *CallModel {
	in := textinput.New()
	in.Placeholder = "say something"
	in.CharLimit = 500
	in.Prompt = IconChat + " "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	return &CallModel{
		room:    room,
		ctl:     ctl,
		events:  events,
		peers:   make(map[string]*ParticipantRow),
		input:   in,
		spinner: sp,
	}
}

// Err is the error that ended the call, if any.
func (m *CallModel) Err() error { return m.err }

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *CallModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(mesh.Event(msg))
		return m, m.listen()

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *CallModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyCtrlC {
		m.leave()
		return m, nil
	}

	if m.typing {
		switch key.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.ctl.SendChat(text)
				m.addChat(chatLine{from: "you", text: text, local: true})
			}
			m.stopTyping()
			return m, nil
		case tea.KeyEsc:
			m.stopTyping()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(key)
		return m, cmd
	}

	if m.leaving {
		return m, nil
	}
	switch key.String() {
	case "v":
		m.ctl.ToggleVideo()
	case "a", "m":
		m.ctl.ToggleAudio()
	case "s":
		m.ctl.ToggleScreenShare()
	case "c", "enter":
		m.typing = true
		return m, m.input.Focus()
	case "q":
		m.leave()
	}
	return m, nil
}

func (m *CallModel) stopTyping() {
	m.typing = false
	m.input.Reset()
	m.input.Blur()
}

func (m *CallModel) leave() {
	if m.leaving {
		return
	}
	m.leaving = true
	m.status = "Leaving call..."
	m.ctl.Leave()
}

// apply folds one coordinator event into the view state.
func (m *CallModel) apply(ev mesh.Event) {
	switch ev.Type {
	case mesh.EventJoined:
		m.joined = true
		m.self = ev.Peer
		m.local = ev.Media
		for _, id := range ev.Members {
			m.upsert(id).State = mesh.StateNegotiating
		}
		m.status = ""

	case mesh.EventPeerJoined:
		m.upsert(ev.Peer).State = mesh.StateNegotiating
		m.status = ShortID(ev.Peer) + " joined"

	case mesh.EventPeerConnected:
		m.upsert(ev.Peer).State = mesh.StateConnected

	case mesh.EventPeerLeft:
		delete(m.peers, ev.Peer)
		m.status = ShortID(ev.Peer) + " left"

	case mesh.EventPeerRemoved:
		delete(m.peers, ev.Peer)
		m.status = fmt.Sprintf("Lost connection to %s", ShortID(ev.Peer))

	case mesh.EventRemoteMedia:
		p := m.upsert(ev.Peer)
		p.Remote = ev.Remote
		p.Known = true

	case mesh.EventRemoteTrack:
		p := m.upsert(ev.Peer)
		if !slices.Contains(p.Receiving, ev.Kind) {
			p.Receiving = append(p.Receiving, ev.Kind)
			slices.Sort(p.Receiving)
		}

	case mesh.EventChat:
		from := ev.DisplayName
		if from == "" {
			from = ShortID(ev.Peer)
		}
		m.addChat(chatLine{from: from, text: ev.Text})

	case mesh.EventMediaChanged:
		m.local = ev.Media

	case mesh.EventMediaError:
		m.local = ev.Media
		m.status = "Device error: " + errText(ev.Err)

	case mesh.EventRelayError:
		m.status = "Relay: " + errText(ev.Err)

	case mesh.EventLeft:
		m.leaving = true
		m.err = ev.Err
		m.peers = make(map[string]*ParticipantRow)
	}
}

func (m *CallModel) upsert(id string) *ParticipantRow {
	p, ok := m.peers[id]
	if !ok {
		p = &ParticipantRow{ID: id}
		m.peers[id] = p
	}
	return p
}

func (m *CallModel) addChat(line chatLine) {
	m.chat = append(m.chat, line)
	if len(m.chat) > chatHistory {
		m.chat = m.chat[len(m.chat)-chatHistory:]
	}
}

// Rows returns the participants sorted by id.
func (m *CallModel) Rows() []ParticipantRow {
	rows := make([]ParticipantRow, 0, len(m.peers))
	for _, p := range m.peers {
		rows = append(rows, *p)
	}
	slices.SortFunc(rows, func(a, b ParticipantRow) int {
		return strings.Compare(a.ID, b.ID)
	})
	return rows
}

func (m *CallModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.room)))
	if m.self != "" {
		b.WriteString(MutedStyle.Render("  you are " + ShortID(m.self)))
	}
	b.WriteString("\n\n")

	if !m.joined {
		b.WriteString(fmt.Sprintf("%s Joining...\n", m.spinner.View()))
	} else {
		b.WriteString(ParticipantTable(m.Rows()))
		b.WriteString("\n")
	}

	b.WriteString("\n" + m.localView() + "\n")

	if len(m.chat) > 0 {
		var lines []string
		for _, c := range m.chat {
			name := NameStyle.Render(c.from)
			if c.local {
				name = MutedStyle.Render(c.from)
			}
			lines = append(lines, fmt.Sprintf("%s: %s", name, c.text))
		}
		b.WriteString("\n" + BoxStyle.Render(strings.Join(lines, "\n")) + "\n")
	}

	if m.status != "" {
		b.WriteString("\n" + WarningStyle.Render(m.status) + "\n")
	}

	if m.typing {
		b.WriteString("\n" + m.input.View() + "\n")
		b.WriteString(HelpStyle.Render("enter send • esc cancel"))
	} else {
		b.WriteString(HelpStyle.Render("v video • a audio • s screen • c chat • q leave"))
	}
	return b.String()
}

func (m *CallModel) localView() string {
	return fmt.Sprintf("%s  %s  %s",
		StatusStyle.Render("you"),
		flag(IconCamera, m.local.VideoEnabled)+" "+flag(IconMic, m.local.AudioEnabled),
		MutedStyle.Render("source: "+m.local.Active.String()),
	)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// RunCall runs the call view until the coordinator's feed closes.
func RunCall(room string, ctl Controls, events <-chan mesh.Event) error {
	m := NewCallModel(room, ctl, events)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("call UI: %w", err)
	}
	return m.Err()
}
