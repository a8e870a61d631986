package mesh

import (
	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// EventType identifies what an Event reports to the UI.
type EventType int

const (
	EventJoined EventType = iota
	EventPeerJoined
	EventPeerConnected
	EventPeerLeft
	EventPeerRemoved
	EventChat
	EventMediaChanged
	EventMediaError
	EventRemoteMedia
	EventRemoteTrack
	EventRelayError
	EventLeft
)

func (t EventType) String() string {
	switch t {
	case EventJoined:
		return "joined"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerConnected:
		return "peer-connected"
	case EventPeerLeft:
		return "peer-left"
	case EventPeerRemoved:
		return "peer-removed"
	case EventChat:
		return "chat"
	case EventMediaChanged:
		return "media-changed"
	case EventMediaError:
		return "media-error"
	case EventRemoteMedia:
		return "remote-media"
	case EventRemoteTrack:
		return "remote-track"
	case EventRelayError:
		return "relay-error"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Event is published on Coordinator.Events.
type Event struct {
	Type        EventType
	Peer        string
	Members     []string
	Text        string
	DisplayName string
	Media       media.State
	Remote      MediaState
	// Kind is the media kind of an EventRemoteTrack.
	Kind media.Kind
	Err  error
}

// PeerInfo is a snapshot of one session for display.
type PeerInfo struct {
	ID     string
	State  State
	Remote MediaState
}

// messages handled by the event loop

type joinedMsg struct {
	self    string
	members []string
}

type userJoinedMsg struct{ id string }

type userLeftMsg struct{ id string }

type signalMsg struct {
	from string
	env  signaling.Envelope
}

type chatMsg struct{ from, name, text string }

type relayErrorMsg struct{ text string }

type disconnectedMsg struct{ err error }

type toggle int

const (
	toggleVideo toggle = iota
	toggleAudio
	toggleScreen
)

type toggleMsg struct{ what toggle }

type sendChatMsg struct{ text string }

type leaveMsg struct{}

type trackEndedMsg struct{ track media.Track }

type candidateMsg struct {
	session   *Session
	candidate webrtc.ICECandidateInit
}

type connStateMsg struct {
	session *Session
	state   webrtc.PeerConnectionState
}

type remoteStateMsg struct {
	session *Session
	state   MediaState
}

type remoteTrackMsg struct {
	session *Session
	kind    media.Kind
}

type funcMsg struct {
	fn   func()
	done chan struct{}
}
