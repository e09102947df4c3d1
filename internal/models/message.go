package models

import "time"

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// DefaultTTL is applied when a client omits the ttl field (24 hours).
const DefaultTTL = 86400

// Message is a relayed chat message. Text messages fill Message; image
// messages fill ImageData and Caption. The same shape is broadcast to
// sockets and mirrored to the durable store (images mirror metadata only).
type Message struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Message   string     `json:"message,omitempty"`
	ImageData *ImageMeta `json:"imageData,omitempty"`
	Caption   string     `json:"caption,omitempty"`
	Sender    string     `json:"sender"`
	Timestamp string     `json:"timestamp"`
	TTL       int        `json:"ttl"`
	RoomToken string     `json:"roomToken"`
}

// ImageMeta describes a stored image. Data carries the inline base64
// payload on the way in from a client and is stripped before any mirror
// write or broadcast.
type ImageMeta struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Filename   string      `json:"filename,omitempty"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	Size       int64       `json:"size"`
	MimeType   string      `json:"mimeType"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Data       string      `json:"data,omitempty"`
}

// Dimensions is client-reported pixel size, passed through untouched.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Time parses the message timestamp. The zero time is returned for
// malformed timestamps; callers treat those messages as expired.
func (m *Message) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Expired reports logical expiry at the given instant. Burn-after-reading
// messages (ttl == 0) never expire logically; their lifetime is handled by
// the broadcast-side expiry notice.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL == 0 {
		return false
	}
	ts := m.Time()
	if ts.IsZero() {
		return true
	}
	return !ts.Add(time.Duration(m.TTL) * time.Second).After(now)
}
