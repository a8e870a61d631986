package mesh

import (
	"errors"
	"testing"

	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type sentLog struct {
	envs []signaling.Envelope
}

func (l *sentLog) signal(_ string, env signaling.Envelope) error {
	l.envs = append(l.envs, env)
	return nil
}

func (l *sentLog) sdpTypes() []string {
	var out []string
	for _, env := range l.envs {
		if env.SDP != nil {
			out = append(out, env.SDP.Type)
		}
	}
	return out
}

func newTestSession(t *testing.T, local, remote string) (*Session, *fakeConn, *sentLog) {
	t.Helper()
	sent := &sentLog{}
	pc, err := newFakeNet().factory(local)(remote, Handlers{})
	if err != nil {
		t.Fatal(err)
	}
	s := newSession(local, remote, sent.signal, zerolog.Nop())
	s.pc = pc
	return s, pc.(*fakeConn), sent
}

func offerEnv(sdp string) signaling.Envelope {
	return signaling.Envelope{SDP: &signaling.SessionDescription{Type: "offer", SDP: sdp}}
}

func answerEnv(sdp string) signaling.Envelope {
	return signaling.Envelope{SDP: &signaling.SessionDescription{Type: "answer", SDP: sdp}}
}

func iceEnv(candidate string) signaling.Envelope {
	return signaling.Envelope{ICE: &signaling.ICECandidate{Candidate: candidate}}
}

func TestSessionOfferAnswerConnected(t *testing.T) {
	s, _, sent := newTestSession(t, "a", "b")

	if s.State() != StateNew {
		t.Fatalf("Expected new, got %s", s.State())
	}
	if err := s.Offer(false); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if s.State() != StateNegotiating {
		t.Errorf("Expected negotiating after offer, got %s", s.State())
	}
	if got := sent.sdpTypes(); len(got) != 1 || got[0] != "offer" {
		t.Fatalf("Expected one offer sent, got %v", got)
	}

	if err := s.HandleSignal(answerEnv("answer b->a")); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
	if s.State() != StateNegotiating {
		t.Errorf("Connected must wait for the transport, got %s", s.State())
	}

	if !s.HandleConnectionState(webrtc.PeerConnectionStateConnected) {
		t.Error("Expected a state change on connected")
	}
	if s.State() != StateConnected {
		t.Errorf("Expected connected, got %s", s.State())
	}
}

func TestSessionAnswersRemoteOffer(t *testing.T) {
	s, pc, sent := newTestSession(t, "b", "a")

	if err := s.HandleSignal(offerEnv("offer a->b")); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}
	if got := sent.sdpTypes(); len(got) != 1 || got[0] != "answer" {
		t.Fatalf("Expected one answer sent, got %v", got)
	}
	if s.State() != StateNegotiating {
		t.Errorf("Expected negotiating, got %s", s.State())
	}
	if pc.offerCount() != 0 {
		t.Error("Answering side must not offer")
	}
}

func TestSessionBuffersCandidatesUntilDescription(t *testing.T) {
	s, pc, _ := newTestSession(t, "b", "a")

	for _, c := range []string{"candidate:1", "candidate:2"} {
		if err := s.HandleSignal(iceEnv(c)); err != nil {
			t.Fatalf("HandleSignal(ice): %v", err)
		}
	}
	if len(pc.candidates) != 0 {
		t.Fatal("Candidates must not be applied before the remote description")
	}
	if s.State() != StateNew {
		t.Errorf("Buffering must not change state, got %s", s.State())
	}

	if err := s.HandleSignal(offerEnv("offer a->b")); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}
	if len(pc.candidates) != 2 || pc.candidates[0].Candidate != "candidate:1" || pc.candidates[1].Candidate != "candidate:2" {
		t.Errorf("Expected buffered candidates in order, got %+v", pc.candidates)
	}

	if err := s.HandleSignal(iceEnv("candidate:3")); err != nil {
		t.Fatalf("HandleSignal(ice): %v", err)
	}
	if len(pc.candidates) != 3 {
		t.Error("Candidates after the description should apply immediately")
	}
}

func TestSessionDropsStaleAnswer(t *testing.T) {
	s, _, _ := newTestSession(t, "a", "b")

	if err := s.HandleSignal(answerEnv("unexpected")); !errors.Is(err, ErrStaleAnswer) {
		t.Fatalf("Expected ErrStaleAnswer, got %v", err)
	}
	if s.State() != StateNew {
		t.Errorf("Stale answer must not change state, got %s", s.State())
	}

	s.Offer(false)
	if err := s.HandleSignal(answerEnv("answer 1")); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
	s.HandleConnectionState(webrtc.PeerConnectionStateConnected)

	if err := s.HandleSignal(answerEnv("answer 1 again")); !errors.Is(err, ErrStaleAnswer) {
		t.Errorf("Expected ErrStaleAnswer for a duplicate, got %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("Expected connected, got %s", s.State())
	}
}

func TestSessionMalformedSignalFails(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeConn)
		env   signaling.Envelope
	}{
		{"empty envelope", nil, signaling.Envelope{}},
		{"unknown description type", nil, signaling.Envelope{SDP: &signaling.SessionDescription{Type: "bogus", SDP: "x"}}},
		{"rejected description", func(pc *fakeConn) { pc.rejectRemote = true }, offerEnv("offer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pc, _ := newTestSession(t, "b", "a")
			if tt.setup != nil {
				tt.setup(pc)
			}
			err := s.HandleSignal(tt.env)
			if !errors.Is(err, ErrMalformedSignal) {
				t.Errorf("Expected ErrMalformedSignal, got %v", err)
			}
			var merr *Error
			if !errors.As(err, &merr) || merr.Peer != "a" {
				t.Errorf("Expected *Error for peer a, got %#v", err)
			}
			if s.State() != StateFailed {
				t.Errorf("Expected failed, got %s", s.State())
			}
		})
	}
}

func TestSessionBadCandidateFails(t *testing.T) {
	s, _, _ := newTestSession(t, "b", "a")
	s.HandleSignal(offerEnv("offer"))

	if err := s.HandleSignal(iceEnv("")); !errors.Is(err, ErrMalformedSignal) {
		t.Errorf("Expected ErrMalformedSignal, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
}

func TestSessionClosedIsTerminal(t *testing.T) {
	s, pc, sent := newTestSession(t, "a", "b")
	s.Offer(false)
	s.Close()

	if !pc.isClosed() {
		t.Error("Close should close the peer connection")
	}
	if err := s.HandleSignal(answerEnv("late")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if err := s.Offer(false); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if _, err := s.SetTrack(media.KindVideo, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if s.HandleConnectionState(webrtc.PeerConnectionStateConnected) || s.State() != StateClosed {
		t.Error("A closed session must stay closed")
	}
	if len(sent.envs) != 1 {
		t.Errorf("Nothing should be sent after close, got %d envelopes", len(sent.envs))
	}
	s.Close()
}

func renegotiateEnv(iceRestart bool) signaling.Envelope {
	return signaling.Envelope{Renegotiate: &signaling.Renegotiate{ICERestart: iceRestart}}
}

func (l *sentLog) requests() []bool {
	var out []bool
	for _, env := range l.envs {
		if env.Renegotiate != nil {
			out = append(out, env.Renegotiate.ICERestart)
		}
	}
	return out
}

func TestSessionOffererFollowsIDOrder(t *testing.T) {
	a, _, _ := newTestSession(t, "a", "b")
	b, _, _ := newTestSession(t, "b", "a")
	if !a.Offerer() || b.Offerer() {
		t.Errorf("Expected only the smaller id to offer, got a=%v b=%v", a.Offerer(), b.Offerer())
	}
}

func TestSessionAnswererRequestsOffer(t *testing.T) {
	s, pc, sent := newTestSession(t, "b", "a")
	s.HandleSignal(offerEnv("offer a->b"))
	s.HandleConnectionState(webrtc.PeerConnectionStateConnected)

	if err := s.Offer(false); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if pc.offerCount() != 0 {
		t.Error("Answering side must never create an offer")
	}
	if got := sent.requests(); len(got) != 1 || got[0] {
		t.Fatalf("Expected one plain offer request, got %v", got)
	}
	if s.State() != StateNegotiating {
		t.Errorf("Expected negotiating while the request is open, got %s", s.State())
	}

	if s.HandleConnectionState(webrtc.PeerConnectionStateConnected) {
		t.Error("Connected must wait for the requested offer")
	}
	if err := s.HandleSignal(offerEnv("offer a->b #2")); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("Expected connected after answering with the transport up, got %s", s.State())
	}
	if pc.signalingState() != webrtc.SignalingStateStable {
		t.Errorf("Expected stable signaling, got %s", pc.signalingState())
	}
}

func TestSessionOffererServesRequests(t *testing.T) {
	s, pc, sent := newTestSession(t, "a", "b")

	if err := s.HandleSignal(renegotiateEnv(false)); err != nil {
		t.Fatalf("HandleSignal(renegotiate): %v", err)
	}
	if got := sent.sdpTypes(); len(got) != 1 || got[0] != "offer" {
		t.Fatalf("Expected the request to be served with an offer, got %v", got)
	}

	// A request arriving while an offer is unanswered waits for the answer.
	s.HandleSignal(renegotiateEnv(false))
	if pc.offerCount() != 1 {
		t.Fatalf("Expected the second request to queue, got %d offers", pc.offerCount())
	}
	if err := s.HandleSignal(answerEnv("answer b->a")); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
	if pc.offerCount() != 2 {
		t.Errorf("Expected the queued offer after the answer, got %d offers", pc.offerCount())
	}
}

func TestSessionAnswererDropsRequests(t *testing.T) {
	s, pc, sent := newTestSession(t, "b", "a")

	if err := s.HandleSignal(renegotiateEnv(true)); err != nil {
		t.Fatalf("HandleSignal(renegotiate): %v", err)
	}
	if pc.offerCount() != 0 || len(sent.envs) != 0 {
		t.Error("Answering side must not act on offer requests")
	}
	if s.State() != StateNew {
		t.Errorf("Expected new, got %s", s.State())
	}
}

func TestSessionIgnoresCollidingOffer(t *testing.T) {
	s, pc, sent := newTestSession(t, "a", "b")
	s.Offer(false)

	if err := s.HandleSignal(offerEnv("offer b->a")); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}
	if err := s.HandleSignal(iceEnv("candidate:for-ignored-offer")); err != nil {
		t.Fatalf("HandleSignal(ice): %v", err)
	}
	if pc.answers != 0 || pc.remoteOfferCount() != 0 {
		t.Error("Offering side must ignore the colliding offer")
	}
	if pc.signalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Errorf("Own offer should still be pending, got %s", pc.signalingState())
	}

	if err := s.HandleSignal(answerEnv("answer b->a")); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
	if s.State() == StateFailed {
		t.Error("Candidates of an ignored offer must not fail the session")
	}
	if len(sent.envs) != 1 {
		t.Errorf("Expected only the original offer to be sent, got %d", len(sent.envs))
	}
}

func TestSessionQueuesRenegotiation(t *testing.T) {
	s, pc, _ := newTestSession(t, "a", "b")
	s.Offer(false)
	s.Offer(false)
	s.Offer(false)

	if pc.offerCount() != 1 {
		t.Fatalf("Expected queued offers to wait, got %d offers", pc.offerCount())
	}
	s.HandleSignal(answerEnv("answer 1"))
	if pc.offerCount() != 2 {
		t.Errorf("Expected one queued offer to be sent after the answer, got %d", pc.offerCount())
	}
}

func TestSessionRestart(t *testing.T) {
	s, pc, _ := newTestSession(t, "a", "b")
	s.Offer(false)
	s.HandleSignal(answerEnv("answer 1"))
	s.HandleConnectionState(webrtc.PeerConnectionStateFailed)

	if s.State() != StateFailed {
		t.Fatalf("Expected failed, got %s", s.State())
	}
	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if pc.restartOffers() != 1 || s.State() != StateNegotiating {
		t.Errorf("Expected one ICE-restart offer, got %d (state %s)", pc.restartOffers(), s.State())
	}

	// The answerer asks for the same restart; the one in flight covers it.
	s.HandleSignal(renegotiateEnv(true))
	if pc.offerCount() != 2 {
		t.Errorf("Expected no extra offer for a duplicate restart request, got %d offers", pc.offerCount())
	}
}

func TestSessionRestartWaitsForOutstandingOffer(t *testing.T) {
	s, pc, _ := newTestSession(t, "a", "b")
	s.Offer(false)
	s.HandleConnectionState(webrtc.PeerConnectionStateFailed)

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if pc.offerCount() != 1 || s.State() != StateNegotiating {
		t.Fatalf("Expected the restart to wait for the answer, got %d offers (state %s)", pc.offerCount(), s.State())
	}

	if err := s.HandleSignal(answerEnv("answer 1")); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
	if pc.restartOffers() != 1 {
		t.Errorf("Expected the ICE-restart offer after the answer, got %d", pc.restartOffers())
	}
	if pc.signalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Errorf("Expected the restart offer applied locally, got %s", pc.signalingState())
	}
}

func TestSessionAnswererRestartRequestsOffer(t *testing.T) {
	s, pc, sent := newTestSession(t, "b", "a")
	s.HandleSignal(offerEnv("offer a->b"))
	s.HandleConnectionState(webrtc.PeerConnectionStateFailed)

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := sent.requests(); len(got) != 1 || !got[0] {
		t.Fatalf("Expected one ICE-restart request, got %v", got)
	}
	if pc.offerCount() != 0 || s.State() != StateNegotiating {
		t.Errorf("Expected to wait for the remote offer, got %d offers (state %s)", pc.offerCount(), s.State())
	}
}

func TestSessionSetTrack(t *testing.T) {
	s, pc, _ := newTestSession(t, "a", "b")
	audio, video, err := media.GeneratePlaceholder()
	if err != nil {
		t.Fatal(err)
	}
	defer audio.Stop()
	defer video.Stop()

	if err := s.AttachTracks(media.Tracks{Audio: audio}); err != nil {
		t.Fatalf("AttachTracks: %v", err)
	}
	if pc.sender(media.KindVideo) == nil || pc.sender(media.KindVideo).current() != nil {
		t.Error("Video sender should be reserved without a track")
	}

	changed, err := s.SetTrack(media.KindVideo, video)
	if err != nil || !changed {
		t.Fatalf("SetTrack = %v, %v", changed, err)
	}
	if pc.sender(media.KindVideo).current() != video.Local() {
		t.Error("Video sender should carry the new track")
	}
	if changed, _ := s.SetTrack(media.KindVideo, video); changed {
		t.Error("Setting the same track again should be a no-op")
	}
	if s.Track(media.KindAudio) != audio {
		t.Error("Audio should be tracked as sent")
	}
}
