package sync

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/domain"
)

// LessonState is what the teacher currently has on screen. A nil LessonID
// means "nothing loaded" and is a valid broadcast (clears the student view).
type LessonState struct {
	LessonID    *string `json:"lessonId"`
	ContentType string  `json:"contentType"`
}

type handPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Raised        bool                 `json:"raised"`
}

// LessonSync carries lesson control and the raise-hand flag. SET_LESSON is
// teacher → student; REQUEST_SYNC is the student asking the teacher to
// re-send the current lesson (covers a late join, since the transport does
// not replay).
type LessonSync struct {
	ch   *command.Channel
	self *domain.Participant

	mu         sync.Mutex
	current    *LessonState
	remoteHand bool
	onChange   func()

	setID  command.ListenerID
	reqID  command.ListenerID
	handID command.ListenerID
}

func NewLessonSync(ch *command.Channel, self *domain.Participant) *LessonSync {
	l := &LessonSync{ch: ch, self: self}
	l.setID = ch.AddListener(command.SetLesson, l.handleSetLesson)
	l.reqID = ch.AddListener(command.RequestSync, l.handleRequestSync)
	l.handID = ch.AddListener(command.RaiseHand, l.handleRaiseHand)
	return l
}

func (l *LessonSync) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetLesson broadcasts the current lesson. Teacher-only; a student call is
// a no-op.
func (l *LessonSync) SetLesson(lessonID *string, contentType string) {
	if !l.self.Role.IsTeacher() {
		return
	}
	s := LessonState{LessonID: lessonID, ContentType: contentType}
	l.mu.Lock()
	l.current = &s
	l.mu.Unlock()
	if err := l.ch.Send(command.SetLesson, s); err != nil {
		log.Debug().Err(err).Str("module", "sync.lesson").Msg("set-lesson broadcast failed")
	}
}

// RequestSync asks the teacher for the current lesson. Student-only.
func (l *LessonSync) RequestSync() {
	if !l.self.Role.IsStudent() {
		return
	}
	if err := l.ch.Send(command.RequestSync, struct{}{}); err != nil {
		log.Debug().Err(err).Str("module", "sync.lesson").Msg("sync request failed")
	}
}

// RaiseHand broadcasts the local hand flag. Either side may raise.
func (l *LessonSync) RaiseHand(raised bool) {
	p := handPayload{ParticipantID: l.self.ID, Raised: raised}
	if err := l.ch.Send(command.RaiseHand, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.lesson").Msg("raise-hand broadcast failed")
	}
}

func (l *LessonSync) Current() (LessonState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return LessonState{}, false
	}
	return *l.current, true
}

func (l *LessonSync) RemoteHandRaised() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteHand
}

func (l *LessonSync) Close() {
	l.ch.RemoveListener(command.SetLesson, l.setID)
	l.ch.RemoveListener(command.RequestSync, l.reqID)
	l.ch.RemoveListener(command.RaiseHand, l.handID)
}

func (l *LessonSync) handleSetLesson(values json.RawMessage) {
	if !l.self.Role.IsStudent() {
		return
	}
	var s LessonState
	if err := json.Unmarshal(values, &s); err != nil {
		log.Debug().Err(err).Str("module", "sync.lesson").Msg("dropped malformed lesson payload")
		return
	}
	l.mu.Lock()
	l.current = &s
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *LessonSync) handleRequestSync(json.RawMessage) {
	if !l.self.Role.IsTeacher() {
		return
	}
	l.mu.Lock()
	cur := l.current
	l.mu.Unlock()
	if cur == nil {
		return
	}
	if err := l.ch.Send(command.SetLesson, *cur); err != nil {
		log.Debug().Err(err).Str("module", "sync.lesson").Msg("lesson re-send failed")
	}
}

func (l *LessonSync) handleRaiseHand(values json.RawMessage) {
	var p handPayload
	if err := json.Unmarshal(values, &p); err != nil {
		return
	}
	if p.ParticipantID == l.self.ID {
		return
	}
	l.mu.Lock()
	l.remoteHand = p.Raised
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}
