package signaling

import "encoding/json"

// Message is the single JSON shape exchanged over the signaling websocket,
// in both directions.
type Message struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"room_id,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Members     []string        `json:"members,omitempty"`
	Text        string          `json:"text,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// client -> relay
	MessageTypeJoinCall  = "join-call"
	MessageTypeLeaveCall = "leave-call"

	// relay -> client
	MessageTypeCallJoined = "call-joined"
	MessageTypeUserJoined = "user-joined"
	MessageTypeUserLeft   = "user-left"
	MessageTypeError      = "error"

	// both directions
	MessageTypeSignal = "signal"
	MessageTypeChat   = "chat-message"
)

// Envelope is the payload of a signal message. Exactly one field is set.
// The relay forwards it untouched; only peers decode it.
type Envelope struct {
	SDP         *SessionDescription `json:"sdp,omitempty"`
	ICE         *ICECandidate       `json:"ice,omitempty"`
	Renegotiate *Renegotiate        `json:"renegotiate,omitempty"`
}

// Renegotiate asks the offering side of a pair for a fresh offer.
type Renegotiate struct {
	ICERestart bool `json:"iceRestart,omitempty"`
}

// Empty reports whether the envelope carries nothing.
func (e Envelope) Empty() bool {
	return e.SDP == nil && e.ICE == nil && e.Renegotiate == nil
}

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewErrorMessage builds an error message with a JSON payload.
func NewErrorMessage(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: MessageTypeError, Payload: payload}
}

// NewSignalMessage wraps an envelope addressed to a remote participant.
func NewSignalMessage(to string, env Envelope) (*Message, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeSignal, To: to, Payload: payload}, nil
}

// DecodeEnvelope parses the payload of a signal message.
func (m *Message) DecodeEnvelope() (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(m.Payload, &env)
	return env, err
}
