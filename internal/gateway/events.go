package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/REZ3X/ghostchat-backend/internal/models"
)

// Client-to-server event names.
const (
	evJoinRoom  = "join-room"
	evSendText  = "send-message"
	evSendImage = "send-image"
)

// Server-to-client event names.
const (
	evRoomJoined        = "room-joined"
	evParticipantJoined = "participant-joined"
	evParticipantLeft   = "participant-left"
	evNewMessage        = "new-message"
	evMessageExpired    = "message-expired"
	evError             = "error"
)

// clientEvent is the inbound envelope. TTL stays raw because clients send
// it as either a number or a string.
type clientEvent struct {
	Type      string            `json:"type"`
	RoomToken string            `json:"roomToken"`
	AgentID   string            `json:"agentId"`
	Message   string            `json:"message"`
	Sender    string            `json:"sender"`
	TTL       json.RawMessage   `json:"ttl"`
	Caption   string            `json:"caption"`
	ImageData *models.ImageMeta `json:"imageData"`
}

// parseTTL returns the event's ttl, falling back to the default for
// absent or unparseable values. Note 0 is a meaningful value (burn after
// reading), not an absence.
func parseTTL(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return models.DefaultTTL
	}
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return models.DefaultTTL
	}
	return n
}

// Internal event union consumed by the hub loop.
type event interface{ isEvent() }

type connectEvent struct{ c *conn }

type joinEvent struct {
	c         *conn
	roomToken string
	agentID   string
}

type sendTextEvent struct {
	c         *conn
	roomToken string
	message   string
	sender    string
	ttl       int
}

type sendImageEvent struct {
	c         *conn
	roomToken string
	image     *models.ImageMeta
	sender    string
	ttl       int
	caption   string
}

type expireEvent struct {
	roomToken string
	messageID string
}

// protocolErrorEvent routes an unparseable or unknown inbound frame
// through the hub loop, which is the only goroutine allowed to write to a
// conn's send channel.
type protocolErrorEvent struct {
	c       *conn
	message string
}

type disconnectEvent struct{ c *conn }

func (connectEvent) isEvent()       {}
func (joinEvent) isEvent()          {}
func (sendTextEvent) isEvent()      {}
func (sendImageEvent) isEvent()     {}
func (expireEvent) isEvent()        {}
func (protocolErrorEvent) isEvent() {}
func (disconnectEvent) isEvent()    {}

// Outbound payloads.

type roomJoinedEvent struct {
	Type         string   `json:"type"`
	RoomToken    string   `json:"roomToken"`
	Participants []string `json:"participants"`
}

type participantEvent struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
}

// newMessageEvent nests the message so the envelope type and the
// message's own text/image type both survive serialization.
type newMessageEvent struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

type messageExpiredEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
