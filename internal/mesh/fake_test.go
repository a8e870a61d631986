package mesh

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// fakeNet connects fakeConns in pairs: once an offerer applies the answer,
// both ends report connected.
type fakeNet struct {
	mu    sync.Mutex
	conns map[[2]string]*fakeConn
}

func newFakeNet() *fakeNet {
	return &fakeNet{conns: make(map[[2]string]*fakeConn)}
}

func (n *fakeNet) factory(local string) Factory {
	return func(remote string, h Handlers) (PeerConnection, error) {
		c := &fakeConn{
			net:      n,
			local:    local,
			remote:   remote,
			h:        h,
			senders:  make(map[media.Kind]*fakeSender),
			sigState: webrtc.SignalingStateStable,
		}
		n.mu.Lock()
		n.conns[[2]string{local, remote}] = c
		n.mu.Unlock()
		return c, nil
	}
}

func (n *fakeNet) conn(local, remote string) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[[2]string{local, remote}]
}

func (n *fakeNet) connect(a *fakeConn) {
	b := n.conn(a.remote, a.local)
	for _, c := range []*fakeConn{a, b} {
		if c == nil {
			continue
		}
		c.mu.Lock()
		already := c.connected
		c.connected = true
		c.mu.Unlock()
		if !already && c.h.OnConnectionState != nil {
			go c.h.OnConnectionState(webrtc.PeerConnectionStateConnected)
		}
	}
	// The state channel opens with the connection: deliver what each end
	// announced so far.
	if b != nil {
		a.deliverLastState()
		b.deliverLastState()
	}
}

type fakeSender struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) current() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

type fakeConn struct {
	net           *fakeNet
	local, remote string
	h             Handlers

	mu             sync.Mutex
	senders        map[media.Kind]*fakeSender
	offers         []bool // ice restart flag per created offer
	answers        int
	remoteOffers   int
	localDesc      *webrtc.SessionDescription
	remoteDesc     *webrtc.SessionDescription
	candidates     []webrtc.ICECandidateInit
	states         []MediaState
	sigState       webrtc.SignalingState
	connected      bool
	closed         bool
	rejectRemote   bool
	emitCandidates bool
}

func (c *fakeConn) AddSender(kind media.Kind, track webrtc.TrackLocal) (Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.senders[kind]; ok {
		return nil, fmt.Errorf("sender for %s already exists", kind)
	}
	s := &fakeSender{track: track}
	c.senders[kind] = s
	return s, nil
}

func (c *fakeConn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = append(c.offers, iceRestart)
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("offer %s->%s #%d", c.local, c.remote, len(c.offers)),
	}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteDesc == nil || c.remoteDesc.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	c.answers++
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  fmt.Sprintf("answer %s->%s #%d", c.local, c.remote, c.answers),
	}, nil
}

// SetLocalDescription and SetRemoteDescription follow the same signaling
// state rules as pion, which has no rollback support.
func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	switch {
	case desc.Type == webrtc.SDPTypeOffer && c.sigState == webrtc.SignalingStateStable:
		c.sigState = webrtc.SignalingStateHaveLocalOffer
	case desc.Type == webrtc.SDPTypeAnswer && c.sigState == webrtc.SignalingStateHaveRemoteOffer:
		c.sigState = webrtc.SignalingStateStable
	default:
		state := c.sigState
		c.mu.Unlock()
		return fmt.Errorf("invalid state change: set local %s in %s", desc.Type, state)
	}
	c.localDesc = &desc
	emit := c.emitCandidates
	c.mu.Unlock()

	if emit && c.h.OnICECandidate != nil {
		go c.h.OnICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:" + c.local})
	}
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.rejectRemote || desc.SDP == "" {
		c.mu.Unlock()
		return errors.New("invalid remote description")
	}
	switch {
	case desc.Type == webrtc.SDPTypeOffer && c.sigState == webrtc.SignalingStateStable:
		c.sigState = webrtc.SignalingStateHaveRemoteOffer
		c.remoteOffers++
	case desc.Type == webrtc.SDPTypeAnswer && c.sigState == webrtc.SignalingStateHaveLocalOffer:
		c.sigState = webrtc.SignalingStateStable
	default:
		state := c.sigState
		c.mu.Unlock()
		return fmt.Errorf("invalid state change: set remote %s in %s", desc.Type, state)
	}
	c.remoteDesc = &desc
	c.mu.Unlock()

	if desc.Type == webrtc.SDPTypeAnswer {
		c.net.connect(c)
	}
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteDesc == nil {
		return errors.New("remote description not set")
	}
	if candidate.Candidate == "" {
		return errors.New("empty candidate")
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) SendState(state MediaState) error {
	c.mu.Lock()
	c.states = append(c.states, state)
	connected := c.connected
	c.mu.Unlock()
	if connected {
		c.deliver(state)
	}
	return nil
}

func (c *fakeConn) deliverLastState() {
	c.mu.Lock()
	if len(c.states) == 0 {
		c.mu.Unlock()
		return
	}
	state := c.states[len(c.states)-1]
	c.mu.Unlock()
	c.deliver(state)
}

func (c *fakeConn) deliver(state MediaState) {
	peer := c.net.conn(c.remote, c.local)
	if peer != nil && peer.h.OnRemoteState != nil {
		go peer.h.OnRemoteState(state)
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fail simulates the transport reporting a failure.
func (c *fakeConn) fail() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.h.OnConnectionState(webrtc.PeerConnectionStateFailed)
}

func (c *fakeConn) offerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offers)
}

func (c *fakeConn) remoteOfferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteOffers
}

func (c *fakeConn) restartOffers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.offers {
		if r {
			n++
		}
	}
	return n
}

func (c *fakeConn) signalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sigState
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sender(kind media.Kind) *fakeSender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.senders[kind]
}

// fakeRelay routes envelopes and chat between coordinators, standing in for
// the relay hub.
type fakeRelay struct {
	mu       sync.Mutex
	peers    map[string]*Coordinator
	chats    []string
	offers   map[[2]string]int
	requests map[[2]string]int
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		peers:    make(map[string]*Coordinator),
		offers:   make(map[[2]string]int),
		requests: make(map[[2]string]int),
	}
}

// offerCount returns the number of offers relayed from one participant to
// another.
func (r *fakeRelay) offerCount(from, to string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offers[[2]string{from, to}]
}

func (r *fakeRelay) requestCount(from, to string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[[2]string{from, to}]
}

func (r *fakeRelay) signaler(id string) *relayEnd {
	return &relayEnd{relay: r, id: id}
}

type relayEnd struct {
	relay *fakeRelay
	id    string
}

func (e *relayEnd) Signal(to string, env signaling.Envelope) error {
	e.relay.mu.Lock()
	target := e.relay.peers[to]
	switch {
	case env.SDP != nil && env.SDP.Type == "offer":
		e.relay.offers[[2]string{e.id, to}]++
	case env.Renegotiate != nil:
		e.relay.requests[[2]string{e.id, to}]++
	}
	e.relay.mu.Unlock()
	if target != nil {
		target.Signal(e.id, env)
	}
	return nil
}

func (e *relayEnd) Chat(text, _ string) error {
	e.relay.mu.Lock()
	e.relay.chats = append(e.relay.chats, e.id+": "+text)
	e.relay.mu.Unlock()
	return nil
}

func (e *relayEnd) Leave() error { return nil }

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	eventuallyWithin(t, 2*time.Second, what, cond)
}

func eventuallyWithin(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// waitEvent reads events until one of type want arrives.
func waitEvent(t *testing.T, c *Coordinator, want EventType, peer string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("Event feed closed while waiting for %s", want)
			}
			if ev.Type == want && (peer == "" || ev.Peer == peer) {
				return ev
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s event", want)
		}
	}
}
