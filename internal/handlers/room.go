package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/models"
	"github.com/REZ3X/ghostchat-backend/internal/room"
)

// RoomStats handles GET /api/room/{token}/stats.
func (h *Handler) RoomStats(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if !room.IsValidToken(token) {
		h.ErrorFrom(w, apperr.New(apperr.InvalidRequest, "Invalid room token"))
		return
	}

	stats, err := h.registry.Stats(token)
	if err != nil {
		h.ErrorFrom(w, err)
		return
	}
	h.JSON(w, http.StatusOK, stats)
}

// HistoryResponse is the room history payload. Note is set when the
// durable store is unavailable and history degraded to empty.
type HistoryResponse struct {
	Messages  []models.Message `json:"messages"`
	Count     int              `json:"count"`
	Timestamp string           `json:"timestamp"`
	Note      string           `json:"note,omitempty"`
}

// RoomMessages handles GET /api/room/{token}/messages.
func (h *Handler) RoomMessages(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	messages, note, err := h.history.RoomMessages(r.Context(), token)
	if err != nil {
		h.ErrorFrom(w, err)
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		Messages:  messages,
		Count:     len(messages),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Note:      note,
	})
}
