// Package room owns the authoritative in-memory room state: which rooms
// exist, who is present in them, and per-room counters. All mutation goes
// through the Registry; there is no other copy of this state.
package room

import (
	"sync"
	"time"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
)

type roomState struct {
	createdAt    time.Time
	messageCount int
}

// Stats is a point-in-time snapshot of one room's counters.
type Stats struct {
	RoomToken        string    `json:"roomToken"`
	ParticipantCount int       `json:"participantCount"`
	MessageCount     int       `json:"messageCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Registry tracks rooms and their participant sets. It is safe for
// concurrent use; the gateway mutates it from its event loop while HTTP
// handlers read stats concurrently.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]*roomState
	participants map[string]map[string]struct{}
	now          func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:        make(map[string]*roomState),
		participants: make(map[string]map[string]struct{}),
		now:          time.Now,
	}
}

// SetClock overrides the registry's time source. Test use only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Join adds agentID to the room's participant set, creating the room on
// first join. Re-joining is a no-op on the set. Returns the participant
// list after the join.
func (r *Registry) Join(roomToken, agentID string) ([]string, error) {
	if !IsValidToken(roomToken) || agentID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "Invalid room token or agent ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.participants[roomToken]
	if !ok {
		set = make(map[string]struct{})
		r.participants[roomToken] = set
	}
	set[agentID] = struct{}{}

	if _, ok := r.rooms[roomToken]; !ok {
		r.rooms[roomToken] = &roomState{createdAt: r.now()}
	}

	participants := make([]string, 0, len(set))
	for id := range set {
		participants = append(participants, id)
	}
	return participants, nil
}

// Leave removes agentID from the room. When the last participant leaves,
// the participant set and the room record are deleted under the same lock
// so an empty-but-present room is never observable. Returns the number of
// participants remaining.
func (r *Registry) Leave(roomToken, agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.participants[roomToken]
	if !ok {
		return 0
	}
	delete(set, agentID)
	if len(set) == 0 {
		delete(r.participants, roomToken)
		delete(r.rooms, roomToken)
		return 0
	}
	return len(set)
}

// RecordMessage increments the room's message counter. A missing room is
// a silent no-op: a message event may race the room's own teardown.
func (r *Registry) RecordMessage(roomToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.rooms[roomToken]; ok {
		state.messageCount++
	}
}

// Stats returns the room's counters, or a NotFound error.
func (r *Registry) Stats(roomToken string) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.rooms[roomToken]
	if !ok {
		return Stats{}, apperr.New(apperr.NotFound, "Room not found")
	}
	return Stats{
		RoomToken:        roomToken,
		ParticipantCount: len(r.participants[roomToken]),
		MessageCount:     state.messageCount,
		CreatedAt:        state.createdAt,
	}, nil
}

// Counts returns the number of active rooms and the total participant
// count across all rooms, for the health endpoint.
func (r *Registry) Counts() (rooms, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.participants {
		participants += len(set)
	}
	return len(r.rooms), participants
}
