// Package history reconstructs a room's visible message history from the
// durable store. History is best-effort: a missing or unreachable store
// yields an empty result with a note, never an error page.
package history

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/models"
	"github.com/REZ3X/ghostchat-backend/internal/room"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

// Service queries the durable store for room history.
type Service struct {
	store  store.MessageStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates the history service. msgStore may be nil.
func NewService(msgStore store.MessageStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  msgStore,
		logger: logger.With().Str("component", "history").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the service's time source. Test use only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// StoreNote explains an empty history when the store is unavailable.
const StoreNote = "message store not available - no message history"

// RoomMessages returns the room's surviving messages, oldest first.
// Entries past their logical expiry are dropped and proactively deleted;
// the store's own TTL should have removed them already, so this is a
// backstop for clock skew and TTL-setting races. Malformed entries are
// skipped with a warning.
func (s *Service) RoomMessages(ctx context.Context, roomToken string) ([]models.Message, string, error) {
	if !room.IsValidToken(roomToken) {
		return nil, "", apperr.New(apperr.InvalidRequest, "Invalid room token")
	}

	if s.store == nil {
		return []models.Message{}, StoreNote, nil
	}

	keys, err := s.store.ScanPrefix(ctx, store.RoomPrefix(roomToken))
	if err != nil {
		s.logger.Warn().Err(err).Str("room", roomToken).Msg("history scan failed")
		return []models.Message{}, StoreNote, nil
	}

	now := s.now()
	messages := make([]models.Message, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			// Key may have expired between scan and get.
			continue
		}

		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping malformed stored message")
			continue
		}

		if msg.Expired(now) {
			if err := s.store.Delete(ctx, key); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("lazy eviction failed")
			}
			continue
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Time().Before(messages[j].Time())
	})

	return messages, "", nil
}

// DeleteImageRecord finds the image message whose metadata id matches
// imageID, removes its store record and best-effort removes its blob via
// the given delete func. Returns whether a record was deleted.
func (s *Service) DeleteImageRecord(ctx context.Context, imageID string, deleteBlob func(filename string)) (bool, error) {
	if s.store == nil {
		return false, apperr.New(apperr.StoreUnavailable, "message store not available")
	}

	keys, err := s.store.ScanPrefix(ctx, store.AllMessagesPrefix)
	if err != nil {
		return false, err
	}

	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping malformed stored message")
			continue
		}
		if msg.Type != models.TypeImage || msg.ImageData == nil || msg.ImageData.ID != imageID {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return false, err
		}
		if msg.ImageData.Filename != "" && deleteBlob != nil {
			deleteBlob(msg.ImageData.Filename)
		}
		s.logger.Info().Str("message_id", msg.ID).Str("image_id", imageID).Msg("deleted image message")
		return true, nil
	}
	return false, nil
}
