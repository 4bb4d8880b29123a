package relay

import (
	"sync"

	"liveclass/internal/domain"
)

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// Hub owns the live room set.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.RoomName]*Room)}
}

func (h *Hub) GetOrCreate(name domain.RoomName) *Room {
	h.mu.RLock()
	room, ok := h.rooms[name]
	h.mu.RUnlock()
	if ok {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok = h.rooms[name]; ok {
		return room
	}
	room = NewRoom(name)
	h.rooms[name] = room
	return room
}

func (h *Hub) Get(name domain.RoomName) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[name]
	return room, ok
}

func (h *Hub) List() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for name, r := range h.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	return out
}

func (h *Hub) StopRoom(name domain.RoomName) {
	h.mu.Lock()
	room, ok := h.rooms[name]
	delete(h.rooms, name)
	h.mu.Unlock()
	if ok {
		room.CloseAll()
	}
}
