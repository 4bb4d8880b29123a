// Package sync holds the per-feature state reconcilers: cursor, selection,
// audio, whiteboard, exercise progress and lesson control. Each one
// registers its command names on the command channel, owns its local
// reconciled state behind its own mutex, and notifies the UI through a
// subscriber callback instead of sharing maps with the render path.
package sync

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/domain"
	"liveclass/internal/throttle"
)

// CursorState is the latest remote pointer position, in percent of the
// shared container so differing client sizes cannot desynchronize it.
type CursorState struct {
	X               float64
	Y               float64
	ParticipantID   domain.ParticipantID
	ParticipantName string
	IsTeacher       bool
	Timestamp       time.Time // local receipt time, drives expiry
}

type cursorPayload struct {
	X               float64              `json:"x"`
	Y               float64              `json:"y"`
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	IsTeacher       bool                 `json:"isTeacher"`
}

// CursorSync broadcasts the local pointer at most once per gate interval
// and expires a remote cursor that has gone quiet, so a lost CURSOR_LEAVE
// never strands a stale pointer on screen.
type CursorSync struct {
	ch   *command.Channel
	self *domain.Participant
	gate *throttle.Gate
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	remote   *CursorState
	onChange func()

	moveID  command.ListenerID
	leaveID command.ListenerID
}

func NewCursorSync(ch *command.Channel, self *domain.Participant, interval, ttl time.Duration) *CursorSync {
	c := &CursorSync{
		ch:   ch,
		self: self,
		gate: throttle.NewGate(interval),
		ttl:  ttl,
		now:  time.Now,
	}
	c.moveID = ch.AddListener(command.CursorMove, c.handleMove)
	c.leaveID = ch.AddListener(command.CursorLeave, c.handleLeave)
	return c
}

// OnChange registers the render-path subscriber. Called after every state
// mutation, never while the mutex is held.
func (c *CursorSync) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Move broadcasts the local pointer position in container percentages.
// Calls inside the gate window are dropped, not queued.
func (c *CursorSync) Move(xPct, yPct float64) {
	if !c.gate.Allow() {
		return
	}
	p := cursorPayload{
		X:               clampPct(xPct),
		Y:               clampPct(yPct),
		ParticipantID:   c.self.ID,
		ParticipantName: c.self.Name,
		IsTeacher:       c.self.Role.IsTeacher(),
	}
	if err := c.ch.Send(command.CursorMove, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.cursor").Msg("cursor broadcast failed")
	}
}

// Leave announces that the local pointer left the shared container.
func (c *CursorSync) Leave() {
	p := cursorPayload{ParticipantID: c.self.ID}
	if err := c.ch.Send(command.CursorLeave, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.cursor").Msg("cursor leave failed")
	}
}

// Remote returns the peer's cursor, expiring it first if it is stale.
func (c *CursorSync) Remote() (CursorState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return CursorState{}, false
	}
	if c.now().Sub(c.remote.Timestamp) > c.ttl {
		c.remote = nil
		return CursorState{}, false
	}
	return *c.remote, true
}

// Tick sweeps an expired cursor. Driven by the session's 1 Hz timer.
func (c *CursorSync) Tick() {
	c.mu.Lock()
	expired := c.remote != nil && c.now().Sub(c.remote.Timestamp) > c.ttl
	if expired {
		c.remote = nil
	}
	fn := c.onChange
	c.mu.Unlock()
	if expired && fn != nil {
		fn()
	}
}

func (c *CursorSync) Close() {
	c.ch.RemoveListener(command.CursorMove, c.moveID)
	c.ch.RemoveListener(command.CursorLeave, c.leaveID)
}

func (c *CursorSync) handleMove(values json.RawMessage) {
	var p cursorPayload
	if err := json.Unmarshal(values, &p); err != nil {
		log.Debug().Err(err).Str("module", "sync.cursor").Msg("dropped malformed cursor payload")
		return
	}
	if p.ParticipantID == c.self.ID {
		return // self-echo
	}
	c.mu.Lock()
	c.remote = &CursorState{
		X:               clampPct(p.X),
		Y:               clampPct(p.Y),
		ParticipantID:   p.ParticipantID,
		ParticipantName: p.ParticipantName,
		IsTeacher:       p.IsTeacher,
		Timestamp:       c.now(),
	}
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *CursorSync) handleLeave(values json.RawMessage) {
	var p cursorPayload
	if err := json.Unmarshal(values, &p); err != nil {
		return
	}
	if p.ParticipantID == c.self.ID {
		return
	}
	c.mu.Lock()
	c.remote = nil
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func clampPct(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
