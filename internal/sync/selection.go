package sync

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/content"
	"liveclass/internal/domain"
	"liveclass/internal/throttle"
)

// TextSelection is a highlight addressed by absolute character offsets into
// a block's visible text, so it survives the two clients' differing layouts.
type TextSelection struct {
	BlockID         domain.BlockID       `json:"blockId"`
	StartOffset     int                  `json:"startOffset"`
	EndOffset       int                  `json:"endOffset"`
	Text            string               `json:"text"`
	ParticipantID   domain.ParticipantID `json:"participantId"`
	ParticipantName string               `json:"participantName"`
	IsTeacher       bool                 `json:"isTeacher"`
}

type deselectPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
}

// NativeRange is the raw selection the UI hands over: one (node, offset)
// pair per end, both expected to sit inside the shared container.
type NativeRange struct {
	StartNode *content.Node
	StartOff  int
	EndNode   *content.Node
	EndOff    int
}

// SelectionSync turns native selections into offset-addressed highlights.
// Nothing is broadcast until the user confirms the pending highlight; the
// local highlight is set optimistically at that point.
type SelectionSync struct {
	ch     *command.Channel
	self   *domain.Participant
	root   *content.Node
	settle *throttle.Debouncer

	mu        sync.Mutex
	selecting bool
	raw       *NativeRange
	pending   *TextSelection
	local     *TextSelection
	remote    *TextSelection
	onChange  func()
	onPending func(TextSelection) // surfaces the floating "Highlight" affordance

	selectID   command.ListenerID
	deselectID command.ListenerID
}

func NewSelectionSync(ch *command.Channel, self *domain.Participant, root *content.Node, settle time.Duration) *SelectionSync {
	s := &SelectionSync{
		ch:   ch,
		self: self,
		root: root,
	}
	s.settle = throttle.NewDebouncer(settle, s.compute)
	s.selectID = ch.AddListener(command.TextSelect, s.handleSelect)
	s.deselectID = ch.AddListener(command.TextDeselect, s.handleDeselect)
	return s
}

func (s *SelectionSync) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *SelectionSync) OnPending(fn func(TextSelection)) {
	s.mu.Lock()
	s.onPending = fn
	s.mu.Unlock()
}

// PointerDown marks an active drag; offset computation holds off until the
// pointer settles to avoid flicker mid-selection.
func (s *SelectionSync) PointerDown() {
	s.mu.Lock()
	s.selecting = true
	s.mu.Unlock()
}

func (s *SelectionSync) PointerUp() {
	s.mu.Lock()
	s.selecting = false
	has := s.raw != nil
	s.mu.Unlock()
	if has {
		s.settle.Trigger()
	}
}

// SelectionChanged records the latest native range and schedules the
// debounced offset computation.
func (s *SelectionSync) SelectionChanged(r NativeRange) {
	s.mu.Lock()
	s.raw = &r
	s.mu.Unlock()
	s.settle.Trigger()
}

// SelectionCleared drops any pending highlight (native selection collapsed).
func (s *SelectionSync) SelectionCleared() {
	s.mu.Lock()
	s.raw = nil
	s.pending = nil
	s.mu.Unlock()
}

// compute runs after the settle window: locate the block, walk offsets,
// and surface the pending highlight. Never broadcasts.
func (s *SelectionSync) compute() {
	s.mu.Lock()
	if s.selecting || s.raw == nil {
		s.mu.Unlock()
		return
	}
	r := *s.raw
	s.mu.Unlock()

	blockID, ok := content.BlockFor(s.root, r.StartNode)
	if !ok {
		return
	}
	block, ok := content.FindBlock(s.root, blockID)
	if !ok {
		return
	}
	start, end, ok := content.Offsets(block, r.StartNode, r.StartOff, r.EndNode, r.EndOff)
	if !ok || start == end {
		return
	}
	_, text, ok := content.Resolve(block, start, end)
	if !ok {
		return
	}

	sel := TextSelection{
		BlockID:         blockID,
		StartOffset:     start,
		EndOffset:       end,
		Text:            text,
		ParticipantID:   s.self.ID,
		ParticipantName: s.self.Name,
		IsTeacher:       s.self.Role.IsTeacher(),
	}
	s.mu.Lock()
	s.pending = &sel
	fn := s.onPending
	s.mu.Unlock()
	if fn != nil {
		fn(sel)
	}
}

// Pending returns the highlight awaiting user confirmation.
func (s *SelectionSync) Pending() (TextSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return TextSelection{}, false
	}
	return *s.pending, true
}

// Confirm promotes the pending highlight: local set first (optimistic),
// then broadcast.
func (s *SelectionSync) Confirm() {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return
	}
	sel := *s.pending
	s.local = &sel
	s.pending = nil
	s.raw = nil
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	if err := s.ch.Send(command.TextSelect, sel); err != nil {
		log.Debug().Err(err).Str("module", "sync.selection").Msg("highlight broadcast failed")
	}
}

// ClearLocal removes the persistent local highlight and tells the peer,
// sending only the participant id.
func (s *SelectionSync) ClearLocal() {
	s.mu.Lock()
	s.local = nil
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	if err := s.ch.Send(command.TextDeselect, deselectPayload{ParticipantID: s.self.ID}); err != nil {
		log.Debug().Err(err).Str("module", "sync.selection").Msg("deselect broadcast failed")
	}
}

func (s *SelectionSync) Local() (TextSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return TextSelection{}, false
	}
	return *s.local, true
}

func (s *SelectionSync) Remote() (TextSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return TextSelection{}, false
	}
	return *s.remote, true
}

// RemoteSpans resolves the remote highlight back to text-node spans for
// rendering. ok=false means the offsets do not resolve in this client's
// tree; the render is skipped for this tick and retried on the next update.
func (s *SelectionSync) RemoteSpans() ([]content.Span, bool) {
	sel, ok := s.Remote()
	if !ok {
		return nil, false
	}
	block, ok := content.FindBlock(s.root, sel.BlockID)
	if !ok {
		return nil, false
	}
	spans, _, ok := content.Resolve(block, sel.StartOffset, sel.EndOffset)
	if !ok {
		return nil, false
	}
	return spans, true
}

func (s *SelectionSync) Close() {
	s.settle.Stop()
	s.ch.RemoveListener(command.TextSelect, s.selectID)
	s.ch.RemoveListener(command.TextDeselect, s.deselectID)
}

func (s *SelectionSync) handleSelect(values json.RawMessage) {
	var sel TextSelection
	if err := json.Unmarshal(values, &sel); err != nil {
		log.Debug().Err(err).Str("module", "sync.selection").Msg("dropped malformed selection payload")
		return
	}
	if sel.ParticipantID == s.self.ID {
		return // self-echo
	}
	s.mu.Lock()
	s.remote = &sel
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *SelectionSync) handleDeselect(values json.RawMessage) {
	var p deselectPayload
	if err := json.Unmarshal(values, &p); err != nil {
		return
	}
	if p.ParticipantID == s.self.ID {
		return
	}
	s.mu.Lock()
	s.remote = nil
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
