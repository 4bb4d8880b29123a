// Package relay is the service half of the room transport: it accepts the
// two participants' websocket connections and fans frames out verbatim.
// It never inspects command payloads; ordering per sender rides on the
// underlying connection, and there is no replay for late joiners.
package relay

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"liveclass/internal/core"
	"liveclass/internal/domain"
)

// MaxMembers caps a classroom at teacher plus student. The synchronized
// state is defined for exactly two participants.
const MaxMembers = 2

var (
	ErrRoomFull      = errors.New("relay: room full")
	ErrAlreadyJoined = errors.New("relay: member already joined")
	ErrBackpressure  = errors.New("relay: backpressure")
	ErrConnClosed    = errors.New("relay: connection closed")
)

type MemberID string

// MemberConn is the transport endpoint the room fans out to. Owned by the
// websocket controller; the controller must Close() it.
type MemberConn interface {
	TrySend(core.Frame) error
	Close()
}

type Room struct {
	name    domain.RoomName
	mu      sync.RWMutex
	members map[MemberID]MemberConn
}

func NewRoom(name domain.RoomName) *Room {
	return &Room{name: name, members: make(map[MemberID]MemberConn)}
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) AddMember(id MemberID, conn MemberConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; ok {
		return ErrAlreadyJoined
	}
	if len(r.members) >= MaxMembers {
		return ErrRoomFull
	}
	r.members[id] = conn
	log.Info().Str("module", "relay.room").Str("room", string(r.name)).Str("member", string(id)).Msg("member added")
	return nil
}

func (r *Room) RemoveMember(id MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
	log.Info().Str("module", "relay.room").Str("room", string(r.name)).Str("member", string(id)).Msg("member removed")
}

type PublishResult struct {
	SentTo  int
	Dropped []MemberID
}

// Broadcast fans a frame out to every member except the sender. Slow
// receivers are dropped from the result, not retried.
func (r *Room) Broadcast(from MemberID, data core.Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, conn := range r.members {
		if id == from {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SentTo++
	}
	return res
}

// CloseAll tears down every member connection, used when a room is evicted.
func (r *Room) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.members {
		conn.Close()
		delete(r.members, id)
	}
}
