package mesh

import (
	"sync"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const stateChannelLabel = "state"

// MediaState is what a peer announces about its own camera, microphone and
// screen over the state data channel.
type MediaState struct {
	Video  bool `msgpack:"video"`
	Audio  bool `msgpack:"audio"`
	Screen bool `msgpack:"screen"`
}

// Sender carries one outgoing track kind on a peer connection.
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// Handlers receives peer connection callbacks. Callbacks may run on any
// goroutine.
type Handlers struct {
	OnICECandidate    func(webrtc.ICECandidateInit)
	OnConnectionState func(webrtc.PeerConnectionState)
	OnRemoteState     func(MediaState)
	OnTrack           func(media.Kind)
}

// PeerConnection is the subset of a WebRTC peer connection a Session drives.
type PeerConnection interface {
	// AddSender adds a sending transceiver for kind. A nil track reserves the
	// media line without sending anything.
	AddSender(kind media.Kind, track webrtc.TrackLocal) (Sender, error)
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SendState(state MediaState) error
	Close() error
}

// Factory creates the peer connection for one remote participant.
type Factory func(remoteID string, h Handlers) (PeerConnection, error)

// ICEConfig lists the ICE servers handed to every peer connection.
type ICEConfig struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
}

// ICEConfigFrom derives the ICE settings from the client configuration.
func ICEConfigFrom(cfg *config.Config) ICEConfig {
	user, pass := cfg.GetTURNCredentials()
	return ICEConfig{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    user,
		TURNPass:    pass,
		ForceRelay:  cfg.ForceRelay,
	}
}

func (c ICEConfig) configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(c.TURNServers) > 0 && (c.ForceRelay || behindRestrictiveNetwork()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// NewPionFactory returns a Factory backed by pion peer connections.
func NewPionFactory(ice ICEConfig, logger zerolog.Logger) Factory {
	return NewPionFactoryWithAPI(nil, ice, logger)
}

// NewPionFactoryWithAPI is NewPionFactory on a caller-built pion API, for
// custom setting or media engines. A nil api uses pion's defaults.
func NewPionFactoryWithAPI(api *webrtc.API, ice ICEConfig, logger zerolog.Logger) Factory {
	return func(remoteID string, h Handlers) (PeerConnection, error) {
		return newPionConn(api, ice, remoteID, h, logger)
	}
}

type pionConn struct {
	pc    *webrtc.PeerConnection
	state *webrtc.DataChannel
	log   zerolog.Logger

	mu      sync.Mutex
	open    bool
	pending *MediaState
}

func newPionConn(api *webrtc.API, ice ICEConfig, remoteID string, h Handlers, logger zerolog.Logger) (*pionConn, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(ice.configuration())
	} else {
		pc, err = webrtc.NewPeerConnection(ice.configuration())
	}
	if err != nil {
		return nil, newError("create peer connection", remoteID, err)
	}

	c := &pionConn{
		pc:  pc,
		log: logger.With().Str("peer", remoteID).Logger(),
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || h.OnICECandidate == nil {
			return
		}
		h.OnICECandidate(candidate.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug().Str("state", state.String()).Msg("Connection state changed")
		if h.OnConnectionState != nil {
			h.OnConnectionState(state)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := media.KindVideo
		if remote.Kind() == webrtc.RTPCodecTypeAudio {
			kind = media.KindAudio
		}
		if h.OnTrack != nil {
			h.OnTrack(kind)
		}
		// Remote media is not rendered; drain so the receive buffers do not fill.
		buf := make([]byte, 1500)
		for {
			if _, _, err := remote.Read(buf); err != nil {
				return
			}
		}
	})

	// Both sides create the same negotiated channel, so no extra offer is
	// needed for it.
	negotiated := true
	id := uint16(0)
	ordered := true
	dc, err := pc.CreateDataChannel(stateChannelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, newError("create data channel", remoteID, err)
	}
	c.state = dc

	dc.OnOpen(func() {
		c.mu.Lock()
		c.open = true
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		if pending != nil {
			if err := c.send(*pending); err != nil {
				c.log.Debug().Err(err).Msg("Failed to send media state")
			}
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var state MediaState
		if err := msgpack.Unmarshal(msg.Data, &state); err != nil {
			c.log.Debug().Err(err).Msg("Dropping malformed media state")
			return
		}
		if h.OnRemoteState != nil {
			h.OnRemoteState(state)
		}
	})

	return c, nil
}

// AddSender adds a sendrecv transceiver for kind. pion cannot start a sender
// that has no track, so an idle track that never writes stands in for nil.
func (c *pionConn) AddSender(kind media.Kind, track webrtc.TrackLocal) (Sender, error) {
	idle, err := idleTrack(kind)
	if err != nil {
		return nil, err
	}
	if track == nil {
		track = idle
	}

	rtp, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := rtp.Read(buf); err != nil {
				return
			}
		}
	}()
	return &pionSender{rtp: rtp, idle: idle}, nil
}

func idleTrack(kind media.Kind) (webrtc.TrackLocal, error) {
	mime := webrtc.MimeTypeH264
	if kind == media.KindAudio {
		mime = webrtc.MimeTypeOpus
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "idle-"+string(kind), "idle")
}

type pionSender struct {
	rtp  *webrtc.RTPSender
	idle webrtc.TrackLocal
}

// ReplaceTrack swaps the outgoing track; nil sends nothing.
func (s *pionSender) ReplaceTrack(track webrtc.TrackLocal) error {
	if track == nil {
		track = s.idle
	}
	return s.rtp.ReplaceTrack(track)
}

func (c *pionConn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// SendState announces state, or holds it until the channel opens.
func (c *pionConn) SendState(state MediaState) error {
	c.mu.Lock()
	if !c.open {
		c.pending = &state
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.send(state)
}

func (c *pionConn) send(state MediaState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return err
	}
	return c.state.Send(data)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}
