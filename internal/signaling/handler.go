package signaling

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
)

// ErrConnectionLost is reported to the Receiver when the relay goes away
// without an error from the socket.
var ErrConnectionLost = errors.New("relay connection lost")

// Receiver consumes the messages the relay sends to a participant.
type Receiver interface {
	Joined(self string, members []string)
	UserJoined(id string, members []string)
	UserLeft(id string)
	Signal(from string, env Envelope)
	Chat(from, displayName, text string)
	RelayError(text string)
	Disconnected(err error)
}

// Handler routes incoming relay messages to a Receiver.
type Handler struct {
	client *Client
	recv   Receiver
	log    zerolog.Logger
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, recv Receiver, logger zerolog.Logger) *Handler {
	return &Handler{client: client, recv: recv, log: logger}
}

// Run routes messages until the connection ends or ctx is done. A connection
// that ends before ctx is reported through Disconnected.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.client.Incoming():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				err := h.client.Err()
				if err == nil {
					err = ErrConnectionLost
				}
				h.recv.Disconnected(err)
				return
			}
			h.route(msg)
		}
	}
}

func (h *Handler) route(msg *Message) {
	switch msg.Type {
	case MessageTypeCallJoined:
		h.recv.Joined(msg.From, msg.Members)

	case MessageTypeUserJoined:
		h.recv.UserJoined(msg.From, msg.Members)

	case MessageTypeUserLeft:
		h.recv.UserLeft(msg.From)

	case MessageTypeSignal:
		env, err := msg.DecodeEnvelope()
		if err != nil || env.Empty() {
			h.log.Warn().Err(err).Str("from", msg.From).Msg("Dropping malformed signal")
			return
		}
		h.recv.Signal(msg.From, env)

	case MessageTypeChat:
		h.recv.Chat(msg.From, msg.DisplayName, msg.Text)

	case MessageTypeError:
		h.recv.RelayError(errorText(msg))

	default:
		h.log.Debug().Str("type", msg.Type).Msg("Ignoring unknown message")
	}
}

func errorText(msg *Message) string {
	var p ErrorPayload
	if len(msg.Payload) > 0 && json.Unmarshal(msg.Payload, &p) == nil && p.Error != "" {
		return p.Error
	}
	if msg.Text != "" {
		return msg.Text
	}
	return "unknown relay error"
}
