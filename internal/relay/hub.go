package relay

import (
	"context"
	"slices"
	"time"

	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	mirrorTimeout   = 2 * time.Second
	mirrorQueueSize = 256
)

// Mirror receives membership changes after the registry has applied them.
// It is informational only; the registry stays the source of truth.
type Mirror interface {
	Joined(ctx context.Context, roomKey, id string) error
	Left(ctx context.Context, roomKey, id string) error
}

type mirrorOp struct {
	roomKey string
	id      string
	joined  bool
}

type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub is the relay router. A single Run goroutine owns the client table and
// performs every registry mutation, so joins and leaves on a room are applied
// one at a time.
type Hub struct {
	registry *Registry
	mirror   Mirror
	log      zerolog.Logger

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	quit       chan struct{}
	stopped    chan struct{}

	// Mirror writes run on their own goroutine so a slow store never holds
	// up routing.
	mirrorOps  chan mirrorOp
	mirrorDone chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithMirror publishes membership changes to m.
func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// NewHub creates a new Hub instance.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		registry:   NewRegistry(),
		log:        log.Logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		mirrorOps:  make(chan mirrorOp, mirrorQueueSize),
		mirrorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the membership registry for read-only snapshots.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Dispatch hands an inbound message from c to the hub loop.
func (h *Hub) Dispatch(c *Client, msg *signaling.Message) {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
	case <-h.quit:
	}
}

// Stop ends Run, closes every client's send channel and waits for queued
// mirror writes.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.stopped
}

// Run starts the hub's main processing loop.
func (h *Hub) Run() {
	defer close(h.stopped)
	go h.runMirror()

	for {
		select {
		case <-h.quit:
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			close(h.mirrorOps)
			<-h.mirrorDone
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.log.Debug().Str("client_id", client.ID).Msg("Client registered")

		case client := <-h.unregister:
			if h.drop(client) {
				h.log.Debug().Str("client_id", client.ID).Msg("Client unregistered")
			}

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeJoinCall:
		h.join(c, msg.RoomID)

	case signaling.MessageTypeLeaveCall:
		h.leave(c.ID)

	case signaling.MessageTypeSignal:
		h.relaySignal(c.ID, msg)

	case signaling.MessageTypeChat:
		h.relayChat(c.ID, msg)

	default:
		h.log.Warn().Str("client_id", c.ID).Str("type", msg.Type).Msg("Unknown message type")
	}
}

func (h *Hub) join(c *Client, roomKey string) {
	current, inRoom := h.registry.RoomOf(c.ID)
	if inRoom && current != roomKey {
		h.leave(c.ID)
	}

	existing, err := h.registry.Join(roomKey, c.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", c.ID).Str("room", roomKey).Msg("Join rejected")
		h.deliver(c, signaling.NewErrorMessage(err.Error()))
		return
	}

	h.log.Info().Str("client_id", c.ID).Str("room", roomKey).Int("members", len(existing)+1).Msg("Participant joined")

	if !h.deliver(c, &signaling.Message{
		Type:    signaling.MessageTypeCallJoined,
		RoomID:  roomKey,
		From:    c.ID,
		Members: existing,
	}) {
		return
	}

	// A repeated join-call for the same room only refreshes the snapshot.
	if inRoom && current == roomKey {
		return
	}

	full := append(slices.Clone(existing), c.ID)
	slices.Sort(full)
	h.broadcast(existing, &signaling.Message{
		Type:    signaling.MessageTypeUserJoined,
		RoomID:  roomKey,
		From:    c.ID,
		Members: full,
	})

	h.queueMirror(mirrorOp{roomKey: roomKey, id: c.ID, joined: true})
}

// leave removes id from its room and tells the remaining members. It is a
// no-op when the participant is not in a room.
func (h *Hub) leave(id string) {
	roomKey, remaining, ok := h.registry.Leave(id)
	if !ok {
		return
	}

	h.log.Info().Str("client_id", id).Str("room", roomKey).Int("members", len(remaining)).Msg("Participant left")
	if len(remaining) == 0 {
		h.log.Debug().Str("room", roomKey).Msg("Room discarded")
	}

	h.broadcast(remaining, &signaling.Message{
		Type:   signaling.MessageTypeUserLeft,
		RoomID: roomKey,
		From:   id,
	})

	h.queueMirror(mirrorOp{roomKey: roomKey, id: id})
}

// relaySignal forwards the envelope verbatim to its recipient when both
// parties share a room. Anything else is a stale message after a leave race
// and is dropped without telling the sender.
func (h *Hub) relaySignal(from string, msg *signaling.Message) {
	if !h.registry.SameRoom(from, msg.To) {
		h.log.Debug().Str("from", from).Str("to", msg.To).Msg("Dropping signal outside sender's room")
		return
	}

	target, ok := h.clients[msg.To]
	if !ok {
		return
	}

	h.deliver(target, &signaling.Message{
		Type:    signaling.MessageTypeSignal,
		From:    from,
		Payload: msg.Payload,
	})
}

func (h *Hub) relayChat(from string, msg *signaling.Message) {
	roomKey, ok := h.registry.RoomOf(from)
	if !ok {
		h.log.Debug().Str("from", from).Msg("Dropping chat from participant outside a room")
		return
	}

	others := slices.DeleteFunc(h.registry.Members(roomKey), func(id string) bool { return id == from })
	h.broadcast(others, &signaling.Message{
		Type:        signaling.MessageTypeChat,
		RoomID:      roomKey,
		From:        from,
		Text:        msg.Text,
		DisplayName: msg.DisplayName,
	})
}

func (h *Hub) broadcast(ids []string, msg *signaling.Message) {
	for _, id := range ids {
		if client, ok := h.clients[id]; ok {
			h.deliver(client, msg)
		}
	}
}

// deliver queues msg for c without blocking the loop. A client whose buffer
// is full cannot keep up and is disconnected, which is an implicit leave.
func (h *Hub) deliver(c *Client, msg *signaling.Message) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		c.log.Warn().Str("type", msg.Type).Msg("Send buffer full, disconnecting client")
		h.drop(c)
		return false
	}
}

// drop forgets c, takes it out of its room and closes its send channel. It
// reports false when c was already gone.
func (h *Hub) drop(c *Client) bool {
	if h.clients[c.ID] != c {
		return false
	}
	delete(h.clients, c.ID)
	// A dropped connection is an implicit leave.
	h.leave(c.ID)
	close(c.Send)
	return true
}

func (h *Hub) queueMirror(op mirrorOp) {
	if h.mirror == nil {
		return
	}
	select {
	case h.mirrorOps <- op:
	default:
		h.log.Warn().Str("room", op.roomKey).Str("client_id", op.id).Msg("Mirror queue full, dropping membership change")
	}
}

func (h *Hub) runMirror() {
	defer close(h.mirrorDone)
	for op := range h.mirrorOps {
		h.applyMirror(op)
	}
}

func (h *Hub) applyMirror(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	if op.joined {
		err = h.mirror.Joined(ctx, op.roomKey, op.id)
	} else {
		err = h.mirror.Left(ctx, op.roomKey, op.id)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("room", op.roomKey).Bool("joined", op.joined).Msg("Failed to mirror membership change")
	}
}
