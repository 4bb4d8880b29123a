// Package lifecycle drives the class countdown, the post-class grace
// period, forced termination and recording segments. Phase is recomputed
// from wall-clock time on every tick, never from elapsed-timer arithmetic,
// so it self-corrects across tab sleep/resume.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/core"
	"liveclass/internal/domain"
)

type Phase int

const (
	PhasePreClass Phase = iota
	PhaseActive
	PhaseGrace
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhasePreClass:
		return "PRE_CLASS"
	case PhaseActive:
		return "ACTIVE"
	case PhaseGrace:
		return "GRACE"
	case PhaseTerminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// Status is the derived, per-tick view. It is recomputed, never stored and
// never transmitted.
type Status struct {
	Phase         Phase
	TimeLeft      time.Duration
	Display       string
	IsPreClass    bool
	IsGracePeriod bool
	ShouldEnd     bool
}

// Segment is one continuous recording interval. A participant who leaves
// and rejoins produces multiple segments, not one continuous recording.
type Segment struct {
	EgressID  string
	StartedAt time.Time
	StoppedAt time.Time
}

type Controller struct {
	sessionID domain.SessionID
	room      domain.RoomName
	timing    domain.ClassTiming
	grace     time.Duration
	tick      time.Duration

	transport core.RoomTransport
	recorder  core.Recorder
	onEnd     func()
	now       func() time.Time

	mu         sync.Mutex
	terminated bool // one-shot guard for the TERMINATED edge
	recording  bool
	starting   bool // guards concurrent/duplicate egress starts
	egressID   string
	segStart   time.Time
	segments   []Segment
	onTick     func(Status)
}

func NewController(sessionID domain.SessionID, room domain.RoomName, timing domain.ClassTiming,
	grace, tick time.Duration, transport core.RoomTransport, recorder core.Recorder, onEnd func()) *Controller {
	return &Controller{
		sessionID: sessionID,
		room:      room,
		timing:    timing,
		grace:     grace,
		tick:      tick,
		transport: transport,
		recorder:  recorder,
		onEnd:     onEnd,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock. Test hook.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// OnTick registers the per-second status subscriber.
func (c *Controller) OnTick(fn func(Status)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

// PhaseAt is the pure phase function of an instant.
func (c *Controller) PhaseAt(t time.Time) Phase {
	switch {
	case t.Before(c.timing.StartTime):
		return PhasePreClass
	case t.Before(c.timing.EndTime):
		return PhaseActive
	case t.Before(c.timing.EndTime.Add(c.grace)):
		return PhaseGrace
	default:
		return PhaseTerminated
	}
}

func (c *Controller) Status() Status {
	t := c.now()
	phase := c.PhaseAt(t)
	var left time.Duration
	switch phase {
	case PhasePreClass:
		left = c.timing.StartTime.Sub(t)
	case PhaseActive:
		left = c.timing.EndTime.Sub(t)
	case PhaseGrace:
		left = c.timing.EndTime.Add(c.grace).Sub(t)
	}
	return Status{
		Phase:         phase,
		TimeLeft:      left,
		Display:       formatLeft(left),
		IsPreClass:    phase == PhasePreClass,
		IsGracePeriod: phase == PhaseGrace,
		ShouldEnd:     phase == PhaseTerminated,
	}
}

func (c *Controller) Active() bool {
	return c.PhaseAt(c.now()) == PhaseActive
}

// Run ticks until the context dies or the session terminates.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.Tick(ctx); done {
				return
			}
		}
	}
}

// Tick evaluates one timer beat. Returns true once the session has been
// force-terminated.
func (c *Controller) Tick(ctx context.Context) bool {
	st := c.Status()
	c.mu.Lock()
	fn := c.onTick
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
	if st.ShouldEnd {
		c.terminate(ctx)
		return true
	}
	return false
}

// Connected marks the transport's connected transition and opens a
// recording segment, exactly once per transition.
func (c *Controller) Connected(ctx context.Context) {
	c.StartSegment(ctx)
}

// StartSegment begins a recording segment. Duplicate and concurrent starts
// collapse into the in-flight one; recorder failures are logged, never
// propagated.
func (c *Controller) StartSegment(ctx context.Context) {
	c.mu.Lock()
	if c.recorder == nil || c.recording || c.starting {
		c.mu.Unlock()
		return
	}
	c.starting = true
	c.mu.Unlock()

	egressID, err := c.recorder.StartEgress(ctx, c.sessionID, c.room)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "lifecycle").Str("session", string(c.sessionID)).Msg("recording start failed")
		return
	}
	c.recording = true
	c.egressID = egressID
	c.segStart = c.now()
	c.mu.Unlock()
	log.Info().Str("module", "lifecycle").Str("egress", egressID).Msg("recording segment started")
}

// StopSegment closes the current recording segment, if any. Called on
// back-navigation, on explicit end-call, and on forced termination.
func (c *Controller) StopSegment(ctx context.Context) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.recording = false
	egressID := c.egressID
	seg := Segment{EgressID: egressID, StartedAt: c.segStart, StoppedAt: c.now()}
	c.segments = append(c.segments, seg)
	c.egressID = ""
	c.mu.Unlock()

	if err := c.recorder.StopEgress(ctx, egressID, c.sessionID); err != nil {
		log.Error().Err(err).Str("module", "lifecycle").Str("egress", egressID).Msg("recording stop failed")
	} else {
		log.Info().Str("module", "lifecycle").Str("egress", egressID).Msg("recording segment stopped")
	}
}

// EndCall is the explicit hang-up: close the segment and leave the room.
func (c *Controller) EndCall(ctx context.Context) {
	c.StopSegment(ctx)
	if err := c.transport.Leave(ctx); err != nil {
		log.Error().Err(err).Str("module", "lifecycle").Msg("leave on end-call failed")
	}
}

// terminate is the edge-triggered TERMINATED transition: stop recording,
// leave the transport, invoke the session-end callback. At most once no
// matter how many ticks land past the threshold.
func (c *Controller) terminate(ctx context.Context) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.mu.Unlock()

	log.Info().Str("module", "lifecycle").Str("session", string(c.sessionID)).Msg("session terminated")
	c.StopSegment(ctx)
	if err := c.transport.Leave(ctx); err != nil {
		log.Error().Err(err).Str("module", "lifecycle").Msg("leave on termination failed")
	}
	if c.onEnd != nil {
		c.onEnd()
	}
}

func (c *Controller) Segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// formatLeft renders MM:SS, or H:MM:SS past the hour.
func formatLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
