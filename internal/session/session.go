// Package session assembles one collaboration session: the command channel
// plus every synchronizer and the lifecycle controller, built once per call
// and passed by reference to whatever needs it. There is no ambient global
// state; the Collab object is the single well-defined lifetime.
package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/config"
	"liveclass/internal/content"
	"liveclass/internal/core"
	"liveclass/internal/domain"
	"liveclass/internal/lifecycle"
	csync "liveclass/internal/sync"
)

var (
	ErrNoTransport   = errors.New("session: transport required")
	ErrNoParticipant = errors.New("session: participant required")
)

type Options struct {
	Class     domain.ClassSession
	Self      *domain.Participant
	Transport core.RoomTransport
	Recorder  core.Recorder      // nil disables recording
	Canvas    core.CanvasWidget  // nil disables the whiteboard
	Player    core.AudioPlayer   // nil disables audio sync
	Content   *content.Node      // shared container tree; nil disables selection
	Sync      config.SyncConfig
	OnEnd     func()
}

// Collab is one participant's live session. Every field is wired at
// construction; Close tears the whole thing down.
type Collab struct {
	Self      *domain.Participant
	Commands  *command.Channel
	Cursor    *csync.CursorSync
	Selection *csync.SelectionSync
	Audio     *csync.AudioSync
	Board     *csync.WhiteboardSync
	Exercise  *csync.ExerciseSync
	Lesson    *csync.LessonSync
	Lifecycle *lifecycle.Controller

	transport core.RoomTransport
	cancel    context.CancelFunc
}

func New(opts Options) (*Collab, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Self == nil {
		return nil, ErrNoParticipant
	}
	cfg := opts.Sync
	if cfg.TickInterval == 0 {
		cfg = config.DefaultSync()
	}

	c := &Collab{
		Self:      opts.Self,
		transport: opts.Transport,
	}
	c.Commands = command.NewChannel(opts.Transport)
	c.Cursor = csync.NewCursorSync(c.Commands, opts.Self, cfg.CursorInterval, cfg.CursorTTL)
	if opts.Content != nil {
		c.Selection = csync.NewSelectionSync(c.Commands, opts.Self, opts.Content, cfg.SelectionSettle)
	}
	if opts.Player != nil {
		c.Audio = csync.NewAudioSync(c.Commands, opts.Self, opts.Player,
			cfg.AudioFreshness, cfg.AudioEchoWindow, cfg.AudioDriftMax, cfg.MaxReplays)
	}
	if opts.Canvas != nil {
		c.Board = csync.NewWhiteboardSync(c.Commands, opts.Self, opts.Canvas,
			cfg.BoardFlushWait, cfg.BoardEchoWindow, cfg.BoardSettleWindow)
	}
	c.Lifecycle = lifecycle.NewController(opts.Class.ID, opts.Class.Room, opts.Class.Timing,
		cfg.GracePeriod, cfg.TickInterval, opts.Transport, opts.Recorder, opts.OnEnd)
	c.Exercise = csync.NewExerciseSync(c.Commands, opts.Self, c.Lifecycle.Active)
	c.Lesson = csync.NewLessonSync(c.Commands, opts.Self)

	// One timer drives every per-second concern.
	c.Lifecycle.OnTick(func(lifecycle.Status) {
		c.Cursor.Tick()
	})
	return c, nil
}

// Connect joins the call, opens the first recording segment and starts the
// lifecycle ticker. A connect failure is terminal for this session; no
// retry is attempted here.
func (c *Collab) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.Lifecycle.Connected(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.Lifecycle.Run(runCtx)
	log.Info().Str("module", "session").Str("participant", string(c.Self.ID)).Str("role", string(c.Self.Role)).Msg("session connected")
	return nil
}

// BackNavigate closes the current recording segment without hanging up;
// rejoining opens a fresh segment.
func (c *Collab) BackNavigate(ctx context.Context) {
	c.Lifecycle.StopSegment(ctx)
}

// Close is the explicit end-call path: stop recording, leave the room,
// unregister every listener and stop the timers.
func (c *Collab) Close(ctx context.Context) {
	c.Lifecycle.EndCall(ctx)
	if c.cancel != nil {
		c.cancel()
	}
	c.Cursor.Close()
	if c.Selection != nil {
		c.Selection.Close()
	}
	if c.Audio != nil {
		c.Audio.Close()
	}
	if c.Board != nil {
		c.Board.Close()
	}
	c.Exercise.Close()
	c.Lesson.Close()
	c.Commands.Close()
	log.Info().Str("module", "session").Str("participant", string(c.Self.ID)).Msg("session closed")
}
