package sync

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/domain"
)

// BlockNavigationState mirrors where the student currently is inside one
// interactive block. Only the teacher's client consumes it.
type BlockNavigationState struct {
	BlockID        domain.BlockID    `json:"blockId"`
	CurrentStep    int               `json:"currentStep"`
	TotalSteps     int               `json:"totalSteps"`
	HasStarted     bool              `json:"hasStarted"`
	IsCompleted    bool              `json:"isCompleted"`
	CurrentAnswers map[string]string `json:"currentAnswers"`
}

// InteractiveBlockResponse is one graded answer. Resubmission overwrites;
// there is no history.
type InteractiveBlockResponse struct {
	BlockID         domain.BlockID  `json:"blockId"`
	BlockType       string          `json:"blockType"`
	Response        json.RawMessage `json:"response"`
	IsCorrect       *bool           `json:"isCorrect,omitempty"`
	Score           *float64        `json:"score,omitempty"`
	ParticipantName string          `json:"participantName"`
	Timestamp       int64           `json:"timestamp"`
}

// ExerciseSync carries the asymmetric student → teacher exercise state.
// Outbound calls are permission-gated: only a student inside an active
// session emits anything; a teacher-side call is silently a no-op. The
// teacher side accumulates navigation and response maps the UI reads
// through snapshot accessors only.
type ExerciseSync struct {
	ch     *command.Channel
	self   *domain.Participant
	active func() bool // session currently in the active phase

	mu        sync.Mutex
	nav       map[domain.BlockID]BlockNavigationState
	responses map[domain.BlockID]InteractiveBlockResponse
	order     []domain.BlockID // response insertion order, drives the panel
	onChange  func()
	now       func() time.Time

	navID  command.ListenerID
	respID command.ListenerID
}

func NewExerciseSync(ch *command.Channel, self *domain.Participant, active func() bool) *ExerciseSync {
	e := &ExerciseSync{
		ch:        ch,
		self:      self,
		active:    active,
		nav:       make(map[domain.BlockID]BlockNavigationState),
		responses: make(map[domain.BlockID]InteractiveBlockResponse),
		now:       time.Now,
	}
	e.navID = ch.AddListener(command.BlockNavigation, e.handleNavigation)
	e.respID = ch.AddListener(command.BlockResponse, e.handleResponse)
	return e
}

func (e *ExerciseSync) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// allowed is the student-only permission gate. Violations are no-ops by
// design, not errors.
func (e *ExerciseSync) allowed() bool {
	if !e.self.Role.IsStudent() {
		return false
	}
	return e.active == nil || e.active()
}

// SyncBlockNavigation broadcasts the student's position inside a block.
func (e *ExerciseSync) SyncBlockNavigation(blockID domain.BlockID, step, total int, started, completed bool, answers map[string]string) {
	if !e.allowed() {
		return
	}
	p := BlockNavigationState{
		BlockID:        blockID,
		CurrentStep:    step,
		TotalSteps:     total,
		HasStarted:     started,
		IsCompleted:    completed,
		CurrentAnswers: answers,
	}
	if err := e.ch.Send(command.BlockNavigation, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.exercise").Msg("navigation broadcast failed")
	}
}

// SendBlockResponse broadcasts a graded answer, stamped with sending time.
func (e *ExerciseSync) SendBlockResponse(blockID domain.BlockID, kind domain.BlockKind, response json.RawMessage, isCorrect *bool, score *float64) {
	if !e.allowed() {
		return
	}
	p := InteractiveBlockResponse{
		BlockID:         blockID,
		BlockType:       kind.String(),
		Response:        response,
		IsCorrect:       isCorrect,
		Score:           score,
		ParticipantName: e.self.Name,
		Timestamp:       e.now().UnixMilli(),
	}
	if err := e.ch.Send(command.BlockResponse, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.exercise").Msg("response broadcast failed")
	}
}

// Navigation returns the mirrored state for one block.
func (e *ExerciseSync) Navigation(blockID domain.BlockID) (BlockNavigationState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.nav[blockID]
	return s, ok
}

// Responses returns every answer so far, in insertion order, for the
// teacher's aggregate panel.
func (e *ExerciseSync) Responses() []InteractiveBlockResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]InteractiveBlockResponse, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.responses[id])
	}
	return out
}

func (e *ExerciseSync) Close() {
	e.ch.RemoveListener(command.BlockNavigation, e.navID)
	e.ch.RemoveListener(command.BlockResponse, e.respID)
}

func (e *ExerciseSync) handleNavigation(values json.RawMessage) {
	if !e.self.Role.IsTeacher() {
		return // students do not consume navigation state
	}
	var p BlockNavigationState
	if err := json.Unmarshal(values, &p); err != nil {
		log.Debug().Err(err).Str("module", "sync.exercise").Msg("dropped malformed navigation payload")
		return
	}
	if p.BlockID == "" {
		return
	}
	e.mu.Lock()
	e.nav[p.BlockID] = p
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *ExerciseSync) handleResponse(values json.RawMessage) {
	if !e.self.Role.IsTeacher() {
		return
	}
	var p InteractiveBlockResponse
	if err := json.Unmarshal(values, &p); err != nil {
		log.Debug().Err(err).Str("module", "sync.exercise").Msg("dropped malformed response payload")
		return
	}
	if p.BlockID == "" {
		return
	}
	e.mu.Lock()
	if _, seen := e.responses[p.BlockID]; !seen {
		e.order = append(e.order, p.BlockID)
	}
	e.responses[p.BlockID] = p // overwrite, no history
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}
