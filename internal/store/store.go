package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist (or has
// already expired at the store level).
var ErrNotFound = errors.New("store: key not found")

// MessageStore is the durable ephemeral store the relay mirrors messages
// into. Keys carry a store-level TTL and expire on their own; everything
// here is best-effort from the caller's point of view.
// RedisStore and MemoryStore implement this interface.
type MessageStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// ScanPrefix returns all keys starting with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// TTL returns the remaining store-level TTL for a key. Negative values
	// follow Redis semantics: -1 for no expiry, -2 for a missing key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}

// Message keys are laid out as message:{roomToken}:{messageId} so a single
// prefix scan stands in for a per-room index.

// MessageKey returns the composite key for one message.
func MessageKey(roomToken, messageID string) string {
	return "message:" + roomToken + ":" + messageID
}

// RoomPrefix returns the scan prefix covering one room's messages.
func RoomPrefix(roomToken string) string {
	return "message:" + roomToken + ":"
}

// AllMessagesPrefix covers every room's messages, for janitor sweeps and
// cross-room lookups.
const AllMessagesPrefix = "message:"
