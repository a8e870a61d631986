package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jayramgit94/Zoom/internal/dns"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	handshake      = 10 * time.Second
)

var ErrClientClosed = errors.New("signaling client closed")

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	log       zerolog.Logger

	incoming chan *Message
	outgoing chan *Message
	done     chan struct{}

	mu      sync.Mutex
	closed  bool
	readErr error
}

// NewClient creates a client for the relay's websocket URL.
func NewClient(serverURL string, logger zerolog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		log:       logger.With().Str("component", "signaling").Logger(),
		incoming:  make(chan *Message, 64),
		outgoing:  make(chan *Message, 64),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: handshake,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, _, err := dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.serverURL, err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			if !closed {
				c.readErr = err
			}
			c.mu.Unlock()
			if !closed {
				c.log.Debug().Err(err).Msg("Relay connection closed")
			}
			return
		}
		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush what is already queued, leave-call in particular.
			for {
				select {
				case msg := <-c.outgoing:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// Send queues msg for the relay.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.outgoing <- msg:
		return nil
	default:
		return fmt.Errorf("outgoing queue full, dropping %s", msg.Type)
	}
}

// Incoming returns the channel of messages from the relay. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Err returns the error that ended the read pump, if the connection dropped
// before Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close sends a close frame and stops the pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Join asks the relay to add us to roomKey.
func (c *Client) Join(roomKey string) error {
	return c.Send(&Message{Type: MessageTypeJoinCall, RoomID: roomKey})
}

// Signal sends an envelope to a participant in the same room.
func (c *Client) Signal(to string, env Envelope) error {
	msg, err := NewSignalMessage(to, env)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Chat broadcasts text to the room.
func (c *Client) Chat(text, displayName string) error {
	return c.Send(&Message{Type: MessageTypeChat, Text: text, DisplayName: displayName})
}

// Leave leaves the room without closing the connection.
func (c *Client) Leave() error {
	return c.Send(&Message{Type: MessageTypeLeaveCall})
}
