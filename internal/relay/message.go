package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jayramgit94/Zoom/internal/signaling"
)

var ErrMalformedMessage = errors.New("malformed message")

// decodeMessage parses an inbound frame and checks the fields each message
// type requires. Anything that fails here is dropped by the read pump.
func decodeMessage(data []byte) (*signaling.Message, error) {
	var msg signaling.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func validate(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.MessageTypeJoinCall:
		if msg.RoomID == "" {
			return fmt.Errorf("%w: join-call without room_id", ErrMalformedMessage)
		}
	case signaling.MessageTypeSignal:
		if msg.To == "" {
			return fmt.Errorf("%w: signal without recipient", ErrMalformedMessage)
		}
		if len(msg.Payload) == 0 || !json.Valid(msg.Payload) {
			return fmt.Errorf("%w: signal without payload", ErrMalformedMessage)
		}
	case signaling.MessageTypeChat:
		if msg.Text == "" {
			return fmt.Errorf("%w: empty chat message", ErrMalformedMessage)
		}
	case signaling.MessageTypeLeaveCall:
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}
	return nil
}
