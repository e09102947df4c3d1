package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// Inline image payloads arrive base64-encoded, so the read limit sits
	// well above the 10 MiB decoded ceiling.
	maxMessageSize = 16 << 20

	sendBuffer = 256
)

// Socket is an indirection over *websocket.Conn to ease testing.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// conn is one client connection. Presence fields (roomToken, agentID,
// joined) are owned by the hub loop and never touched by the pumps. The
// send channel is closed by the hub loop alone, once the conn is out of
// every map; the pumps signal exit only through the disconnect event.
type conn struct {
	sock     Socket
	hub      *Hub
	send     chan []byte
	sockOnce sync.Once

	roomToken string
	agentID   string
	joined    bool
}

func newConn(sock Socket, hub *Hub) *conn {
	return &conn{
		sock: sock,
		hub:  hub,
		send: make(chan []byte, sendBuffer),
	}
}

// trySend queues data without blocking. Delivery is best-effort live
// fan-out; a client that cannot keep up loses frames rather than stalling
// the hub. Hub loop only: the loop is the single sender on c.send, which
// is what makes closing the channel there safe.
func (c *conn) trySend(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error().Err(err).Msg("marshal outbound event")
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn().Msg("send buffer full, dropping frame")
	}
}

func (c *conn) closeSocket() {
	c.sockOnce.Do(func() { _ = c.sock.Close() })
}

// readPump parses inbound frames and feeds the hub's event loop. It owns
// the connection's read side; exit enqueues the disconnect.
func (c *conn) readPump() {
	defer func() {
		c.hub.enqueue(disconnectEvent{c: c})
		c.closeSocket()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.hub.enqueue(protocolErrorEvent{c: c, message: "Malformed event payload"})
			continue
		}

		switch ev.Type {
		case evJoinRoom:
			c.hub.enqueue(joinEvent{c: c, roomToken: ev.RoomToken, agentID: ev.AgentID})
		case evSendText:
			c.hub.enqueue(sendTextEvent{c: c, roomToken: ev.RoomToken, message: ev.Message, sender: ev.Sender, ttl: parseTTL(ev.TTL)})
		case evSendImage:
			c.hub.enqueue(sendImageEvent{c: c, roomToken: ev.RoomToken, image: ev.ImageData, sender: ev.Sender, ttl: parseTTL(ev.TTL), caption: ev.Caption})
		default:
			c.hub.enqueue(protocolErrorEvent{c: c, message: "Unknown event type"})
		}
	}
}

// writePump drains the send channel to the socket and keeps the
// connection alive with pings. The channel closing means the hub loop has
// fully detached the conn.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
