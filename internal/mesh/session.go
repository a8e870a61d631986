package mesh

import (
	"fmt"

	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// State is the negotiation state of a Session.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var kinds = [...]media.Kind{media.KindAudio, media.KindVideo}

// SignalFunc delivers an envelope to a remote participant through the relay.
type SignalFunc func(to string, env signaling.Envelope) error

// Session negotiates the connection with one remote participant. Only the
// side with the smaller id ever offers; the other side asks for an offer
// instead, so offers never collide and nothing is rolled back.
//
// A Session is not safe for concurrent use; the Coordinator drives every
// Session from its event loop.
type Session struct {
	remoteID string
	offerer  bool
	pc       PeerConnection
	signal   SignalFunc
	log      zerolog.Logger

	state   State
	senders map[media.Kind]Sender
	sent    map[media.Kind]media.Track

	// offering side
	offerOutstanding   bool
	restartOutstanding bool
	renegotiate        bool
	restartQueued      bool

	// answering side
	awaitingOffer bool

	remoteDescSet     bool
	ignoreOffer       bool
	transportUp       bool
	pendingCandidates []webrtc.ICECandidateInit

	// retried is owned by the Coordinator's failure policy.
	retried bool
}

func newSession(localID, remoteID string, signal SignalFunc, logger zerolog.Logger) *Session {
	return &Session{
		remoteID: remoteID,
		offerer:  localID < remoteID,
		signal:   signal,
		log:      logger.With().Str("peer", remoteID).Logger(),
		senders:  make(map[media.Kind]Sender),
		sent:     make(map[media.Kind]media.Track),
	}
}

func (s *Session) RemoteID() string { return s.remoteID }
func (s *Session) State() State     { return s.state }

// Offerer reports whether the local side sends the offers of this pair.
func (s *Session) Offerer() bool { return s.offerer }

// Track returns the local track currently sent for kind, or nil.
func (s *Session) Track(kind media.Kind) media.Track { return s.sent[kind] }

// AttachTracks reserves one sender per kind, carrying the given tracks.
func (s *Session) AttachTracks(tracks media.Tracks) error {
	for _, kind := range kinds {
		if _, err := s.SetTrack(kind, tracks.Get(kind)); err != nil {
			return err
		}
	}
	return nil
}

// SetTrack replaces the outgoing track of kind, adding a sender when none
// exists. It reports whether anything changed.
func (s *Session) SetTrack(kind media.Kind, track media.Track) (bool, error) {
	if s.state == StateClosed {
		return false, ErrSessionClosed
	}

	var local webrtc.TrackLocal
	if track != nil {
		local = track.Local()
	}

	sender, ok := s.senders[kind]
	if !ok {
		sender, err := s.pc.AddSender(kind, local)
		if err != nil {
			return false, wrapError("add sender", s.remoteID, err, string(kind))
		}
		s.senders[kind] = sender
		s.sent[kind] = track
		return true, nil
	}

	if s.sent[kind] == track {
		return false, nil
	}
	if err := sender.ReplaceTrack(local); err != nil {
		return false, wrapError("replace track", s.remoteID, err, string(kind))
	}
	s.sent[kind] = track
	return true, nil
}

// Offer starts a negotiation round. The offering side creates, applies and
// sends a new offer, queueing it while an earlier one is unanswered. The
// answering side asks the remote for an offer instead.
func (s *Session) Offer(iceRestart bool) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if !s.offerer {
		return s.requestOffer(iceRestart)
	}
	if s.offerOutstanding {
		s.renegotiate = true
		s.restartQueued = s.restartQueued || iceRestart
		s.log.Debug().Msg("Offer outstanding, queueing renegotiation")
		return nil
	}

	offer, err := s.pc.CreateOffer(iceRestart)
	if err != nil {
		return s.fail("create offer", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return s.fail("set local description", err)
	}

	s.offerOutstanding = true
	s.restartOutstanding = iceRestart
	s.state = StateNegotiating
	s.log.Debug().Bool("ice_restart", iceRestart).Msg("Sending offer")
	return s.send(signaling.Envelope{SDP: &signaling.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}})
}

func (s *Session) requestOffer(iceRestart bool) error {
	s.awaitingOffer = true
	s.state = StateNegotiating
	s.log.Debug().Bool("ice_restart", iceRestart).Msg("Requesting offer")
	return s.send(signaling.Envelope{Renegotiate: &signaling.Renegotiate{ICERestart: iceRestart}})
}

// Restart starts an ICE restart. An unanswered offer completes first and the
// restart offer follows its answer.
func (s *Session) Restart() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.offerer && s.offerOutstanding {
		s.renegotiate = true
		s.restartQueued = true
		s.state = StateNegotiating
		s.log.Debug().Msg("Offer outstanding, queueing ICE restart")
		return nil
	}
	return s.Offer(true)
}

// HandleSignal applies an envelope received from the remote participant.
// Stale answers return ErrStaleAnswer and leave the session untouched;
// malformed descriptions or candidates move it to StateFailed.
func (s *Session) HandleSignal(env signaling.Envelope) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	switch {
	case env.SDP != nil:
		return s.handleDescription(*env.SDP)
	case env.ICE != nil:
		return s.handleCandidate(*env.ICE)
	case env.Renegotiate != nil:
		return s.handleRenegotiate(*env.Renegotiate)
	default:
		return s.fail("handle signal", fmt.Errorf("%w: empty envelope", ErrMalformedSignal))
	}
}

func (s *Session) handleDescription(sd signaling.SessionDescription) error {
	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(sd.Type), SDP: sd.SDP}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return s.handleOffer(desc)
	case webrtc.SDPTypeAnswer:
		return s.handleAnswer(desc)
	default:
		return s.fail("handle description", fmt.Errorf("%w: description type %q", ErrMalformedSignal, sd.Type))
	}
}

func (s *Session) handleOffer(offer webrtc.SessionDescription) error {
	// An offer crossing one of ours can only come from a peer that does not
	// follow the offerer rule; it is dropped along with its candidates.
	s.ignoreOffer = s.offerOutstanding
	if s.ignoreOffer {
		s.log.Debug().Msg("Ignoring colliding offer")
		return nil
	}

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return s.fail("set remote description", fmt.Errorf("%w: %v", ErrMalformedSignal, err))
	}
	if err := s.remoteDescriptionSet(); err != nil {
		return err
	}

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return s.fail("create answer", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return s.fail("set local description", err)
	}

	s.awaitingOffer = false
	s.settle()
	return s.send(signaling.Envelope{SDP: &signaling.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}})
}

// handleRenegotiate serves an offer request from the answering side. A
// restart request is already covered by an ICE restart in flight.
func (s *Session) handleRenegotiate(req signaling.Renegotiate) error {
	if !s.offerer {
		s.log.Debug().Msg("Dropping offer request, the remote side offers")
		return nil
	}
	if req.ICERestart && (s.restartOutstanding || s.restartQueued) {
		return nil
	}
	return s.Offer(req.ICERestart)
}

func (s *Session) handleAnswer(answer webrtc.SessionDescription) error {
	if s.state != StateNegotiating || !s.offerOutstanding {
		return wrapError("handle answer", s.remoteID, ErrStaleAnswer, s.state.String())
	}

	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return s.fail("set remote description", fmt.Errorf("%w: %v", ErrMalformedSignal, err))
	}
	s.offerOutstanding = false
	s.restartOutstanding = false
	if err := s.remoteDescriptionSet(); err != nil {
		return err
	}

	s.settle()
	return s.flushRenegotiation()
}

func (s *Session) handleCandidate(c signaling.ICECandidate) error {
	candidate := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}

	if !s.remoteDescSet {
		s.pendingCandidates = append(s.pendingCandidates, candidate)
		return nil
	}
	return s.addCandidate(candidate)
}

func (s *Session) addCandidate(candidate webrtc.ICECandidateInit) error {
	if err := s.pc.AddICECandidate(candidate); err != nil {
		if s.ignoreOffer {
			// Candidates of an offer we ignored have nowhere to go.
			return nil
		}
		return s.fail("add ICE candidate", fmt.Errorf("%w: %v", ErrMalformedSignal, err))
	}
	return nil
}

// remoteDescriptionSet flushes candidates that arrived before any remote
// description, in arrival order.
func (s *Session) remoteDescriptionSet() error {
	s.remoteDescSet = true

	pending := s.pendingCandidates
	s.pendingCandidates = nil
	for _, c := range pending {
		if err := s.addCandidate(c); err != nil {
			return err
		}
	}
	s.ignoreOffer = false
	return nil
}

// settle moves to the state matching the transport once signaling is stable.
func (s *Session) settle() {
	if s.transportUp {
		s.state = StateConnected
	} else {
		s.state = StateNegotiating
	}
}

func (s *Session) flushRenegotiation() error {
	if !s.renegotiate {
		return nil
	}
	restart := s.restartQueued
	s.renegotiate = false
	s.restartQueued = false
	return s.Offer(restart)
}

// HandleConnectionState applies a transport state change and reports whether
// the session state changed.
func (s *Session) HandleConnectionState(state webrtc.PeerConnectionState) bool {
	if s.state == StateClosed {
		return false
	}

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.transportUp = true
		if s.offerOutstanding || s.awaitingOffer || s.state == StateConnected {
			return false
		}
		s.state = StateConnected
		return true
	case webrtc.PeerConnectionStateFailed:
		s.transportUp = false
		if s.state == StateFailed {
			return false
		}
		s.state = StateFailed
		return true
	case webrtc.PeerConnectionStateDisconnected:
		s.transportUp = false
	}
	return false
}

// SendState announces local media state over the state data channel.
func (s *Session) SendState(state MediaState) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	return s.pc.SendState(state)
}

// Close tears the session down. Every later call is a no-op.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.pendingCandidates = nil
	s.renegotiate = false
	s.awaitingOffer = false
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to close peer connection")
		}
	}
}

func (s *Session) send(env signaling.Envelope) error {
	if err := s.signal(s.remoteID, env); err != nil {
		return newError("send signal", s.remoteID, err)
	}
	return nil
}

func (s *Session) fail(op string, err error) error {
	s.state = StateFailed
	s.log.Warn().Err(err).Str("op", op).Msg("Negotiation failed")
	return newError(op, s.remoteID, err)
}
