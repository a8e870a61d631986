package mesh

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	inboxSize  = 256
	eventsSize = 256
)

// Signaler is the relay side of the Coordinator.
type Signaler interface {
	Signal(to string, env signaling.Envelope) error
	Chat(text, displayName string) error
	Leave() error
}

// Config wires a Coordinator.
type Config struct {
	Source      *media.Source
	NewPeer     Factory
	Signaler    Signaler
	DisplayName string
	Logger      zerolog.Logger
}

// Coordinator owns the sessions with every other participant of a call. All
// state changes happen on the goroutine running Run; the exported methods
// only post messages to it.
type Coordinator struct {
	src      *media.Source
	newPeer  Factory
	signaler Signaler
	name     string
	log      zerolog.Logger

	localID  string
	sessions map[string]*Session
	remote   map[string]MediaState
	watched  map[media.Track]struct{}

	inbox  chan any
	events chan Event
	done   chan struct{}
}

func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		src:      cfg.Source,
		newPeer:  cfg.NewPeer,
		signaler: cfg.Signaler,
		name:     cfg.DisplayName,
		log:      cfg.Logger.With().Str("component", "mesh").Logger(),
		sessions: make(map[string]*Session),
		remote:   make(map[string]MediaState),
		watched:  make(map[media.Track]struct{}),
		inbox:    make(chan any, inboxSize),
		events:   make(chan Event, eventsSize),
		done:     make(chan struct{}),
	}
}

// Events is the feed the UI renders from. It is closed when Run returns.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Run processes messages until the call is left, the relay connection drops
// or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.events)
	defer close(c.done)

	c.watch(c.src.CurrentTracks())

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return ctx.Err()
		case msg := <-c.inbox:
			if c.handle(msg) {
				return nil
			}
		}
	}
}

// signaling.Receiver

func (c *Coordinator) Joined(self string, members []string) {
	c.post(joinedMsg{self: self, members: members})
}

func (c *Coordinator) UserJoined(id string, _ []string) {
	c.post(userJoinedMsg{id: id})
}

func (c *Coordinator) UserLeft(id string) {
	c.post(userLeftMsg{id: id})
}

func (c *Coordinator) Signal(from string, env signaling.Envelope) {
	c.post(signalMsg{from: from, env: env})
}

func (c *Coordinator) Chat(from, displayName, text string) {
	c.post(chatMsg{from: from, name: displayName, text: text})
}

func (c *Coordinator) RelayError(text string) {
	c.post(relayErrorMsg{text: text})
}

func (c *Coordinator) Disconnected(err error) {
	c.post(disconnectedMsg{err: err})
}

// local intent

func (c *Coordinator) ToggleVideo()       { c.post(toggleMsg{what: toggleVideo}) }
func (c *Coordinator) ToggleAudio()       { c.post(toggleMsg{what: toggleAudio}) }
func (c *Coordinator) ToggleScreenShare() { c.post(toggleMsg{what: toggleScreen}) }
func (c *Coordinator) SendChat(text string) {
	c.post(sendChatMsg{text: text})
}
func (c *Coordinator) Leave() { c.post(leaveMsg{}) }

// Peers returns a snapshot of every session, sorted by id.
func (c *Coordinator) Peers() []PeerInfo {
	var peers []PeerInfo
	c.do(func() {
		for id, s := range c.sessions {
			peers = append(peers, PeerInfo{ID: id, State: s.State(), Remote: c.remote[id]})
		}
	})
	slices.SortFunc(peers, func(a, b PeerInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return peers
}

func (c *Coordinator) post(msg any) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

// do runs fn on the event loop and waits for it. It returns immediately once
// the loop has stopped.
func (c *Coordinator) do(fn func()) {
	done := make(chan struct{})
	select {
	case c.inbox <- funcMsg{fn: fn, done: done}:
	case <-c.done:
		return
	}
	select {
	case <-done:
	case <-c.done:
	}
}

func (c *Coordinator) handle(msg any) (stop bool) {
	switch m := msg.(type) {
	case joinedMsg:
		c.handleJoined(m)
	case userJoinedMsg:
		c.handleUserJoined(m.id)
	case userLeftMsg:
		if c.removePeer(m.id) {
			c.emit(Event{Type: EventPeerLeft, Peer: m.id})
		}
	case signalMsg:
		c.handleSignal(m)
	case chatMsg:
		c.emit(Event{Type: EventChat, Peer: m.from, DisplayName: m.name, Text: m.text})
	case relayErrorMsg:
		c.emit(Event{Type: EventRelayError, Err: errors.New(m.text)})
	case disconnectedMsg:
		c.log.Warn().Err(m.err).Msg("Relay connection lost, leaving call")
		c.teardown()
		c.emit(Event{Type: EventLeft, Err: m.err})
		return true
	case toggleMsg:
		c.handleToggle(m.what)
	case sendChatMsg:
		if c.localID == "" {
			c.emit(Event{Type: EventRelayError, Err: ErrNotJoined})
			return false
		}
		if err := c.signaler.Chat(m.text, c.name); err != nil {
			c.emit(Event{Type: EventRelayError, Err: err})
		}
	case leaveMsg:
		c.teardown()
		if err := c.signaler.Leave(); err != nil {
			c.log.Debug().Err(err).Msg("Failed to notify relay of leave")
		}
		c.emit(Event{Type: EventLeft})
		return true
	case trackEndedMsg:
		c.handleTrackEnded(m.track)
	case candidateMsg:
		if !c.current(m.session) {
			return false
		}
		ice := signaling.ICECandidate{
			Candidate:        m.candidate.Candidate,
			SDPMid:           m.candidate.SDPMid,
			SDPMLineIndex:    m.candidate.SDPMLineIndex,
			UsernameFragment: m.candidate.UsernameFragment,
		}
		if err := c.signaler.Signal(m.session.RemoteID(), signaling.Envelope{ICE: &ice}); err != nil {
			c.log.Debug().Err(err).Str("peer", m.session.RemoteID()).Msg("Failed to send candidate")
		}
	case connStateMsg:
		if !c.current(m.session) {
			return false
		}
		c.transition(m.session, func() error {
			m.session.HandleConnectionState(m.state)
			return nil
		})
	case remoteStateMsg:
		if !c.current(m.session) {
			return false
		}
		id := m.session.RemoteID()
		c.remote[id] = m.state
		c.emit(Event{Type: EventRemoteMedia, Peer: id, Remote: m.state})
	case remoteTrackMsg:
		if !c.current(m.session) {
			return false
		}
		c.emit(Event{Type: EventRemoteTrack, Peer: m.session.RemoteID(), Kind: m.kind})
	case funcMsg:
		m.fn()
		close(m.done)
	default:
		c.log.Error().Type("msg", msg).Msg("Unhandled coordinator message")
	}
	return false
}

func (c *Coordinator) handleJoined(m joinedMsg) {
	c.localID = m.self
	c.log = c.log.With().Str("client_id", m.self).Logger()
	c.log.Info().Strs("members", m.members).Msg("Joined call")

	for _, id := range m.members {
		c.addPeer(id)
	}
	c.emit(Event{Type: EventJoined, Peer: m.self, Members: slices.Clone(m.members), Media: c.src.State()})
}

func (c *Coordinator) handleUserJoined(id string) {
	if c.localID == "" || id == c.localID {
		return
	}
	if _, ok := c.sessions[id]; ok {
		return
	}
	if c.addPeer(id) {
		c.emit(Event{Type: EventPeerJoined, Peer: id})
	}
}

// addPeer creates the session for id and, when the local id sorts first,
// sends the initial offer. Exactly one side of every pair offers.
func (c *Coordinator) addPeer(id string) bool {
	if id == c.localID {
		return false
	}

	tracks, err := c.src.EnsureTracks()
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to prepare local tracks")
	}
	c.watch(tracks)

	s := newSession(c.localID, id, c.signaler.Signal, c.log)
	pc, err := c.newPeer(id, Handlers{
		OnICECandidate: func(candidate webrtc.ICECandidateInit) {
			c.post(candidateMsg{session: s, candidate: candidate})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			c.post(connStateMsg{session: s, state: state})
		},
		OnRemoteState: func(state MediaState) {
			c.post(remoteStateMsg{session: s, state: state})
		},
		OnTrack: func(kind media.Kind) {
			c.post(remoteTrackMsg{session: s, kind: kind})
		},
	})
	if err != nil {
		c.log.Error().Err(err).Str("peer", id).Msg("Failed to create peer connection")
		c.emit(Event{Type: EventPeerRemoved, Peer: id, Err: err})
		return false
	}
	s.pc = pc
	c.sessions[id] = s

	if err := s.AttachTracks(tracks); err != nil {
		c.log.Error().Err(err).Str("peer", id).Msg("Failed to attach local tracks")
	}
	if err := s.SendState(c.mediaState()); err != nil {
		c.log.Debug().Err(err).Str("peer", id).Msg("Failed to announce media state")
	}

	if s.Offerer() {
		c.transition(s, func() error { return s.Offer(false) })
	}
	return true
}

func (c *Coordinator) removePeer(id string) bool {
	s, ok := c.sessions[id]
	if !ok {
		return false
	}
	s.Close()
	delete(c.sessions, id)
	delete(c.remote, id)
	return true
}

func (c *Coordinator) handleSignal(m signalMsg) {
	s, ok := c.sessions[m.from]
	if !ok {
		c.log.Debug().Str("peer", m.from).Msg("Dropping signal for unknown peer")
		return
	}
	c.transition(s, func() error { return s.HandleSignal(m.env) })
}

// transition runs op on s and reacts to the resulting state: connected peers
// are announced and failed peers go through the failure policy.
func (c *Coordinator) transition(s *Session, op func() error) {
	before := s.State()
	if err := op(); err != nil {
		switch {
		case errors.Is(err, ErrStaleAnswer):
			c.log.Debug().Err(err).Msg("Dropping stale answer")
		case errors.Is(err, ErrSessionClosed):
		default:
			c.log.Warn().Err(err).Msg("Session operation failed")
		}
	}

	after := s.State()
	switch {
	case after == StateConnected && before != StateConnected:
		s.retried = false
		c.emit(Event{Type: EventPeerConnected, Peer: s.RemoteID()})
	case after == StateFailed && before != StateFailed:
		c.handleFailure(s)
	}
}

// handleFailure allows one ICE-restart offer per failure; a session that
// fails again before reconnecting is removed.
func (c *Coordinator) handleFailure(s *Session) {
	id := s.RemoteID()
	if !s.retried {
		s.retried = true
		c.log.Warn().Str("peer", id).Msg("Peer failed, restarting ICE")
		if err := s.Restart(); err == nil || s.State() != StateFailed {
			return
		}
	}

	c.log.Warn().Str("peer", id).Msg("Peer failed again, removing")
	c.removePeer(id)
	c.emit(Event{Type: EventPeerRemoved, Peer: id, Err: ErrPeerFailed})
}

func (c *Coordinator) handleToggle(what toggle) {
	state := c.src.State()

	var (
		tracks media.Tracks
		err    error
	)
	switch what {
	case toggleVideo:
		tracks, err = c.src.SetVideo(!state.VideoEnabled)
	case toggleAudio:
		tracks, err = c.src.SetAudio(!state.AudioEnabled)
	case toggleScreen:
		if state.ScreenSharing {
			tracks, err = c.src.StopScreenShare()
		} else {
			tracks, err = c.src.StartScreenShare()
		}
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Media toggle failed")
		c.emit(Event{Type: EventMediaError, Err: err, Media: c.src.State()})
	}

	c.applyTracks(tracks)
	c.emit(Event{Type: EventMediaChanged, Media: c.src.State()})
}

func (c *Coordinator) handleTrackEnded(t media.Track) {
	delete(c.watched, t)

	tracks, changed, err := c.src.TrackEnded(t)
	if !changed {
		return
	}
	if err != nil {
		c.emit(Event{Type: EventMediaError, Err: err, Media: c.src.State()})
	}
	c.applyTracks(tracks)
	c.emit(Event{Type: EventMediaChanged, Media: c.src.State()})
}

// applyTracks puts tracks on every session and renegotiates each session
// whose senders changed, once.
func (c *Coordinator) applyTracks(tracks media.Tracks) {
	c.watch(tracks)
	state := c.mediaState()

	for _, id := range c.sortedPeers() {
		s := c.sessions[id]
		changed := false
		for _, kind := range kinds {
			ch, err := s.SetTrack(kind, tracks.Get(kind))
			if err != nil {
				c.log.Warn().Err(err).Str("peer", id).Msg("Failed to update track")
			}
			changed = changed || ch
		}
		if changed {
			c.transition(s, func() error { return s.Offer(false) })
		}
		if err := s.SendState(state); err != nil && !errors.Is(err, ErrSessionClosed) {
			c.log.Debug().Err(err).Str("peer", id).Msg("Failed to announce media state")
		}
	}
}

func (c *Coordinator) watch(tracks media.Tracks) {
	for _, t := range []media.Track{tracks.Audio, tracks.Video} {
		if t == nil {
			continue
		}
		if _, ok := c.watched[t]; ok {
			continue
		}
		c.watched[t] = struct{}{}
		go func() {
			select {
			case <-t.Done():
				c.post(trackEndedMsg{track: t})
			case <-c.done:
			}
		}()
	}
}

func (c *Coordinator) mediaState() MediaState {
	st := c.src.State()
	return MediaState{
		Video:  st.VideoEnabled || st.ScreenSharing,
		Audio:  st.AudioEnabled,
		Screen: st.ScreenSharing,
	}
}

func (c *Coordinator) current(s *Session) bool {
	return c.sessions[s.RemoteID()] == s
}

func (c *Coordinator) sortedPeers() []string {
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Coordinator) teardown() {
	for id := range c.sessions {
		c.removePeer(id)
	}
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("event", ev.Type.String()).Msg("Event feed full, dropping event")
	}
}
