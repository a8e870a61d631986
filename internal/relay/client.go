package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs for a few
	// transceivers fit comfortably.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one participant's websocket connection to the relay.
type Client struct {
	// ID is the participant id assigned at connection time.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// Send is drained by WritePump. Only the hub closes it.
	Send chan *signaling.Message

	log zerolog.Logger
}

// NewClient wraps a connection. The connection may be nil in tests that
// only exercise hub routing.
func NewClient(hub *Hub, conn *websocket.Conn, id string, logger zerolog.Logger) *Client {
	return &Client{
		ID:   id,
		Hub:  hub,
		Conn: conn,
		Send: make(chan *signaling.Message, sendBuffer),
		log:  logger.With().Str("client_id", id).Logger(),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. A read error
// is treated as an implicit leave.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("Unexpected close error")
			}
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed message")
			continue
		}

		c.Hub.Dispatch(c, msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// It is the only writer on the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
