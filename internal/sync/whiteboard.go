package sync

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/core"
	"liveclass/internal/domain"
	"liveclass/internal/throttle"
)

type boardPayload struct {
	Elements      []core.SceneElement  `json:"elements"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

// WhiteboardSync reconciles the drawing canvas between the two clients.
// Per-element versions decide merges: higher version wins, the incoming
// copy wins ties, and an id missing from an incoming non-empty list means
// the peer deleted it. An empty incoming list is the "board cleared"
// sentinel, not the absence of an update.
type WhiteboardSync struct {
	ch     *command.Channel
	self   *domain.Participant
	canvas core.CanvasWidget
	flush  *throttle.Debouncer

	echoWindow   time.Duration
	settleWindow time.Duration
	now          func() time.Time

	mu          sync.Mutex
	versions    map[string]int64 // id -> last broadcast/seen version
	lastSent    time.Time
	lastApplied time.Time
	onChange    func()

	updateID command.ListenerID
}

func NewWhiteboardSync(ch *command.Channel, self *domain.Participant, canvas core.CanvasWidget,
	flushWait, echoWindow, settleWindow time.Duration) *WhiteboardSync {
	w := &WhiteboardSync{
		ch:           ch,
		self:         self,
		canvas:       canvas,
		echoWindow:   echoWindow,
		settleWindow: settleWindow,
		now:          time.Now,
		versions:     make(map[string]int64),
	}
	w.flush = throttle.NewDebouncer(flushWait, w.broadcast)
	w.updateID = ch.AddListener(command.WhiteboardUpdate, w.handleUpdate)
	canvas.OnChange(w.Changed)
	return w
}

func (w *WhiteboardSync) OnChange(fn func()) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Changed coalesces canvas edits into one trailing broadcast per burst.
func (w *WhiteboardSync) Changed() {
	w.flush.Trigger()
}

// FlushNow broadcasts without waiting out the debounce window.
func (w *WhiteboardSync) FlushNow() {
	w.flush.Flush()
}

func (w *WhiteboardSync) Close() {
	w.flush.Stop()
	w.ch.RemoveListener(command.WhiteboardUpdate, w.updateID)
}

// dirty reports whether the scene differs from the version cache: a new or
// bumped element, or a previously seen id that disappeared (deletion).
func dirty(cache map[string]int64, scene []core.SceneElement) bool {
	present := make(map[string]struct{}, len(scene))
	for _, el := range scene {
		present[el.ID] = struct{}{}
		v, seen := cache[el.ID]
		if !seen || el.Version > v {
			return true
		}
	}
	for id := range cache {
		if _, ok := present[id]; !ok {
			return true
		}
	}
	return false
}

func (w *WhiteboardSync) broadcast() {
	w.mu.Lock()
	if !w.lastApplied.IsZero() && w.now().Sub(w.lastApplied) < w.settleWindow {
		// A received update is still settling; the change that woke us is
		// (at least partly) the merge itself. Try again after the window.
		w.mu.Unlock()
		w.flush.Trigger()
		return
	}
	w.mu.Unlock()

	scene := w.canvas.Elements()

	w.mu.Lock()
	if !dirty(w.versions, scene) {
		w.mu.Unlock()
		return
	}
	w.lastSent = w.now()
	w.mu.Unlock()

	p := boardPayload{Elements: scene, ParticipantID: w.self.ID}
	if err := w.ch.Send(command.WhiteboardUpdate, p); err != nil {
		// Scene stays dirty against the cache; the next flush retries it.
		log.Debug().Err(err).Str("module", "sync.whiteboard").Msg("whiteboard broadcast failed")
		return
	}

	w.mu.Lock()
	w.rebuildCache(scene)
	w.mu.Unlock()
}

func (w *WhiteboardSync) rebuildCache(scene []core.SceneElement) {
	w.versions = make(map[string]int64, len(scene))
	for _, el := range scene {
		w.versions[el.ID] = el.Version
	}
}

func (w *WhiteboardSync) handleUpdate(values json.RawMessage) {
	var p boardPayload
	if err := json.Unmarshal(values, &p); err != nil {
		log.Debug().Err(err).Str("module", "sync.whiteboard").Msg("dropped malformed whiteboard payload")
		return
	}
	if p.ParticipantID == w.self.ID {
		return // self-echo by sender id
	}
	now := w.now()
	w.mu.Lock()
	if !w.lastSent.IsZero() && now.Sub(w.lastSent) < w.echoWindow {
		// Just-sent window: anything bouncing straight back is our own
		// update reflected by the transport.
		w.mu.Unlock()
		return
	}
	w.lastApplied = now
	w.mu.Unlock()

	merged := merge(w.canvas.Elements(), p.Elements)
	w.canvas.SetElements(merged)

	w.mu.Lock()
	w.rebuildCache(merged)
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// merge builds the next scene from the local one and an incoming element
// list. Empty incoming list clears the board. Otherwise the result is the
// incoming set, except where a local copy of the same id carries a strictly
// higher version; local ids absent from the incoming set are dropped
// (remote deletion applies).
func merge(local, incoming []core.SceneElement) []core.SceneElement {
	if len(incoming) == 0 {
		return nil
	}
	byID := make(map[string]core.SceneElement, len(local))
	for _, el := range local {
		byID[el.ID] = el
	}
	out := make([]core.SceneElement, 0, len(incoming))
	for _, in := range incoming {
		if loc, ok := byID[in.ID]; ok && loc.Version > in.Version {
			out = append(out, loc)
			continue
		}
		out = append(out, in) // higher-or-equal: incoming copy wins ties
	}
	return out
}
