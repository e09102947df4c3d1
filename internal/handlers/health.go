package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
	ActiveRooms       int    `json:"activeRooms"`
	TotalParticipants int    `json:"totalParticipants"`
	Redis             string `json:"redis"`
	RedisError        string `json:"redisError,omitempty"`
}

// Health reports process liveness, room/participant counts and durable
// store reachability. Store failure degrades the status but never the
// endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	redisStatus := "disconnected"
	redisError := ""
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			redisStatus = "error"
			redisError = "connection failed"
		} else {
			redisStatus = "connected"
		}
	}

	rooms, participants := h.registry.Counts()

	h.JSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		ActiveRooms:       rooms,
		TotalParticipants: participants,
		Redis:             redisStatus,
		RedisError:        redisError,
	})
}
