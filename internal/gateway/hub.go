// Package gateway consumes real-time connection events, drives the room
// registry and message lifecycle, and fans results out to connected room
// members. All shared state is owned by a single event loop; connections
// only ever talk to it through the event channel.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/lifecycle"
	"github.com/REZ3X/ghostchat-backend/internal/metrics"
	"github.com/REZ3X/ghostchat-backend/internal/room"
	"github.com/REZ3X/ghostchat-backend/internal/schedule"
)

// Hub is the presence and broadcast gateway.
type Hub struct {
	registry  *room.Registry
	lifecycle *lifecycle.Manager
	sched     *schedule.Scheduler
	logger    zerolog.Logger

	events chan event
	done   chan struct{}

	// Owned by the run loop.
	conns map[*conn]struct{}
	rooms map[string]map[*conn]struct{}

	upgrader websocket.Upgrader
}

// NewHub wires the gateway. allowedOrigin is the frontend origin admitted
// by the WebSocket handshake; "*" admits any.
func NewHub(registry *room.Registry, lc *lifecycle.Manager, sched *schedule.Scheduler, allowedOrigin string, logger zerolog.Logger) *Hub {
	return &Hub{
		registry:  registry,
		lifecycle: lc,
		sched:     sched,
		logger:    logger.With().Str("component", "gateway").Logger(),
		events:    make(chan event, 512),
		done:      make(chan struct{}),
		conns:     make(map[*conn]struct{}),
		rooms:     make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeWS upgrades an HTTP request into a gateway connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.Attach(sock)
}

// Attach registers a socket and starts its pumps. Split from ServeWS so
// tests can drive the hub with fake sockets.
func (h *Hub) Attach(sock Socket) {
	c := newConn(sock, h)
	h.enqueue(connectEvent{c: c})
	go c.writePump()
	go c.readPump()
}

// enqueue delivers an event to the run loop. State transitions (joins,
// disconnects) must never be dropped: a lost disconnect leaks the agent
// in the registry forever. The enqueuing goroutines can afford to block
// on a full queue; only outbound fan-out (trySend) is best-effort.
func (h *Hub) enqueue(e event) {
	select {
	case h.events <- e:
	case <-h.done:
	}
}

// Run processes events one at a time until ctx is cancelled. Handlers run
// to completion without interleaving, so registry and room maps need no
// further coordination here.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.conns {
				close(c.send)
				c.closeSocket()
			}
			return
		case e := <-h.events:
			h.dispatch(e)
		}
	}
}

func (h *Hub) dispatch(e event) {
	switch ev := e.(type) {
	case connectEvent:
		h.conns[ev.c] = struct{}{}
		metrics.ConnectedClients.Inc()
	case joinEvent:
		h.handleJoin(ev)
	case sendTextEvent:
		h.handleSendText(ev)
	case sendImageEvent:
		h.handleSendImage(ev)
	case expireEvent:
		h.handleExpire(ev)
	case protocolErrorEvent:
		ev.c.trySend(errorEvent{Type: evError, Message: ev.message})
	case disconnectEvent:
		h.handleDisconnect(ev)
	}
}

func (h *Hub) handleJoin(ev joinEvent) {
	c := ev.c

	participants, err := h.registry.Join(ev.roomToken, ev.agentID)
	if err != nil {
		h.sendError(c, err)
		return
	}

	// Re-join with a different room re-associates the connection; leave
	// the old room so it cannot leak a participant.
	if c.joined && c.roomToken != ev.roomToken {
		h.detachFromRoom(c)
	}

	set, ok := h.rooms[ev.roomToken]
	if !ok {
		set = make(map[*conn]struct{})
		h.rooms[ev.roomToken] = set
	}
	set[c] = struct{}{}

	c.roomToken = ev.roomToken
	c.agentID = ev.agentID
	c.joined = true

	c.trySend(roomJoinedEvent{Type: evRoomJoined, RoomToken: ev.roomToken, Participants: participants})
	h.broadcast(ev.roomToken, participantEvent{Type: evParticipantJoined, AgentID: ev.agentID}, c)

	h.updateGauges()
	h.logger.Info().Str("agent", ev.agentID).Str("room", ev.roomToken).Msg("agent joined room")
}

func (h *Hub) handleSendText(ev sendTextEvent) {
	c := ev.c
	if !c.joined {
		h.sendError(c, apperr.New(apperr.NotJoined, "Join a room before sending"))
		return
	}

	msg, err := h.lifecycle.SendText(context.Background(), lifecycle.TextRequest{
		RoomToken: ev.roomToken,
		Message:   ev.message,
		Sender:    ev.sender,
		TTL:       ev.ttl,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.registry.RecordMessage(msg.RoomToken)
	h.broadcast(msg.RoomToken, newMessageEvent{Type: evNewMessage, Message: *msg}, nil)
	h.armBurnNotice(msg.RoomToken, msg.ID, msg.TTL)

	h.logger.Info().
		Str("room", msg.RoomToken).
		Str("sender", ev.sender).
		Str("message_id", msg.ID).
		Int("ttl", msg.TTL).
		Msg("text message relayed")
}

func (h *Hub) handleSendImage(ev sendImageEvent) {
	c := ev.c
	if !c.joined {
		h.sendError(c, apperr.New(apperr.NotJoined, "Join a room before sending"))
		return
	}

	msg, err := h.lifecycle.SendImage(context.Background(), lifecycle.ImageRequest{
		RoomToken: ev.roomToken,
		Image:     ev.image,
		Sender:    ev.sender,
		TTL:       ev.ttl,
		Caption:   ev.caption,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.registry.RecordMessage(msg.RoomToken)
	h.broadcast(msg.RoomToken, newMessageEvent{Type: evNewMessage, Message: *msg}, nil)
	h.armBurnNotice(msg.RoomToken, msg.ID, msg.TTL)

	h.logger.Info().
		Str("room", msg.RoomToken).
		Str("sender", ev.sender).
		Str("message_id", msg.ID).
		Int("ttl", msg.TTL).
		Msg("image message relayed")
}

// armBurnNotice schedules the message-expired notice for burn-after-
// reading messages so clients can locally purge them.
func (h *Hub) armBurnNotice(roomToken, messageID string, ttl int) {
	if ttl != 0 {
		return
	}
	h.sched.Schedule(lifecycle.BurnNoticeDelay, func() {
		h.enqueue(expireEvent{roomToken: roomToken, messageID: messageID})
	})
}

func (h *Hub) handleExpire(ev expireEvent) {
	h.broadcast(ev.roomToken, messageExpiredEvent{Type: evMessageExpired, MessageID: ev.messageID}, nil)
	metrics.ExpiryNotices.Inc()
}

func (h *Hub) handleDisconnect(ev disconnectEvent) {
	c := ev.c
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	metrics.ConnectedClients.Dec()

	if c.joined {
		h.detachFromRoom(c)
		h.updateGauges()
	}

	// The conn is out of every map now, so no later event can reach its
	// send channel. Closing it here, on the only goroutine that sends to
	// it, lets writePump drain and exit.
	close(c.send)
	c.closeSocket()
}

// detachFromRoom removes the connection from its room, updates the
// registry and notifies remaining members. The last departure tears the
// room down inside Leave; nobody is left to notify then.
func (h *Hub) detachFromRoom(c *conn) {
	token := c.roomToken
	if set, ok := h.rooms[token]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, token)
		}
	}

	remaining := h.registry.Leave(token, c.agentID)
	if remaining > 0 {
		h.broadcast(token, participantEvent{Type: evParticipantLeft, AgentID: c.agentID}, c)
	}
	c.joined = false
	h.logger.Info().Str("agent", c.agentID).Str("room", token).Msg("agent left room")
}

// broadcast fans an event out to every connection in the room, skipping
// except when non-nil.
func (h *Hub) broadcast(roomToken string, v any, except *conn) {
	for c := range h.rooms[roomToken] {
		if c == except {
			continue
		}
		c.trySend(v)
	}
}

func (h *Hub) sendError(c *conn, err error) {
	msg := "Internal error"
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	c.trySend(errorEvent{Type: evError, Message: msg})
}

func (h *Hub) updateGauges() {
	rooms, participants := h.registry.Counts()
	metrics.ActiveRooms.Set(float64(rooms))
	metrics.Participants.Set(float64(participants))
}
