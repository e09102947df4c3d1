package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/history"
	"github.com/REZ3X/ghostchat-backend/internal/lifecycle"
	"github.com/REZ3X/ghostchat-backend/internal/room"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	registry  *room.Registry
	store     store.MessageStore // nil when no durable store is configured
	blobs     blob.Store
	lifecycle *lifecycle.Manager
	history   *history.Service
	logger    zerolog.Logger
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(registry *room.Registry, msgStore store.MessageStore, blobs blob.Store, lc *lifecycle.Manager, hist *history.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		store:     msgStore,
		blobs:     blobs,
		lifecycle: lc,
		history:   hist,
		logger:    logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ErrorFrom maps a taxonomy error to its HTTP status. Untyped errors
// become opaque 500s; internal detail never reaches the client.
func (h *Handler) ErrorFrom(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "Something went wrong!")
		return
	}
	switch kind {
	case apperr.InvalidRequest:
		h.Error(w, http.StatusBadRequest, err.Error())
	case apperr.NotFound:
		h.Error(w, http.StatusNotFound, err.Error())
	case apperr.StoreUnavailable:
		h.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, "Something went wrong!")
	}
}
