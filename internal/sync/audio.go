package sync

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"liveclass/internal/command"
	"liveclass/internal/core"
	"liveclass/internal/domain"
)

// nearZeroSeconds bounds what counts as "restarting from the top" for the
// replay limit.
const nearZeroSeconds = 1.0

type audioPayload struct {
	BlockID       domain.BlockID       `json:"blockId"`
	CurrentTime   float64              `json:"currentTime"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Timestamp     int64                `json:"timestamp"` // unix millis at send
}

// AudioSync keeps one shared audio element's transport in step between the
// two clients. Both sides drive the same element, so every received event
// runs a freshness check and an echo window before touching the player.
type AudioSync struct {
	ch     *command.Channel
	self   *domain.Participant
	player core.AudioPlayer

	freshness  time.Duration
	echoWindow time.Duration
	driftMax   time.Duration
	maxReplays int
	now        func() time.Time

	mu       sync.Mutex
	lastSync time.Time // local send timestamp, suppresses feedback loops
	replays  int
	onChange func()

	playID  command.ListenerID
	pauseID command.ListenerID
	seekID  command.ListenerID
}

func NewAudioSync(ch *command.Channel, self *domain.Participant, player core.AudioPlayer,
	freshness, echoWindow, driftMax time.Duration, maxReplays int) *AudioSync {
	a := &AudioSync{
		ch:         ch,
		self:       self,
		player:     player,
		freshness:  freshness,
		echoWindow: echoWindow,
		driftMax:   driftMax,
		maxReplays: maxReplays,
		now:        time.Now,
	}
	a.playID = ch.AddListener(command.AudioPlay, a.handlePlay)
	a.pauseID = ch.AddListener(command.AudioPause, a.handlePause)
	a.seekID = ch.AddListener(command.AudioSeek, a.handleSeek)
	return a
}

func (a *AudioSync) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// CanPlay reports whether the replay limit still allows starting playback.
// The counter is per-client policy and never synchronized; 0 = unlimited.
func (a *AudioSync) CanPlay() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxReplays == 0 || a.replays < a.maxReplays
}

// Play broadcasts a local play action. A restart from near-zero consumes
// one replay; past the limit the call is a no-op.
func (a *AudioSync) Play() {
	t := a.player.CurrentTime()
	a.mu.Lock()
	if a.maxReplays > 0 && t < nearZeroSeconds {
		if a.replays >= a.maxReplays {
			a.mu.Unlock()
			return
		}
		a.replays++
	}
	a.lastSync = a.now()
	a.mu.Unlock()
	a.send(command.AudioPlay, t)
}

func (a *AudioSync) Pause() {
	a.mu.Lock()
	a.lastSync = a.now()
	a.mu.Unlock()
	a.send(command.AudioPause, a.player.CurrentTime())
}

func (a *AudioSync) Seek(seconds float64) {
	a.mu.Lock()
	a.lastSync = a.now()
	a.mu.Unlock()
	a.send(command.AudioSeek, seconds)
}

func (a *AudioSync) send(name string, t float64) {
	p := audioPayload{
		BlockID:       a.player.Block(),
		CurrentTime:   t,
		ParticipantID: a.self.ID,
		Timestamp:     a.now().UnixMilli(),
	}
	if err := a.ch.Send(name, p); err != nil {
		log.Debug().Err(err).Str("module", "sync.audio").Str("command", name).Msg("audio broadcast failed")
	}
}

func (a *AudioSync) Close() {
	a.ch.RemoveListener(command.AudioPlay, a.playID)
	a.ch.RemoveListener(command.AudioPause, a.pauseID)
	a.ch.RemoveListener(command.AudioSeek, a.seekID)
}

// accept runs the three gates every inbound event must pass: same block,
// fresh (out-of-order delivery after a reconnect arrives stale), and not
// inside the local echo window.
func (a *AudioSync) accept(p audioPayload) bool {
	if p.ParticipantID == a.self.ID {
		return false
	}
	if p.BlockID != a.player.Block() {
		return false
	}
	now := a.now()
	if now.Sub(time.UnixMilli(p.Timestamp)) > a.freshness {
		return false
	}
	a.mu.Lock()
	inEcho := !a.lastSync.IsZero() && now.Sub(a.lastSync) < a.echoWindow
	a.mu.Unlock()
	return !inEcho
}

// correct seeks only when drift exceeds the threshold; small network jitter
// must not produce audible skips.
func (a *AudioSync) correct(target float64) {
	drift := math.Abs(a.player.CurrentTime() - target)
	if drift > a.driftMax.Seconds() {
		a.player.Seek(target)
	}
}

func (a *AudioSync) notify() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (a *AudioSync) handlePlay(values json.RawMessage) {
	var p audioPayload
	if err := json.Unmarshal(values, &p); err != nil {
		log.Debug().Err(err).Str("module", "sync.audio").Msg("dropped malformed audio payload")
		return
	}
	if !a.accept(p) {
		return
	}
	a.correct(p.CurrentTime)
	if !a.player.IsPlaying() {
		a.player.Play()
	}
	a.notify()
}

func (a *AudioSync) handlePause(values json.RawMessage) {
	var p audioPayload
	if err := json.Unmarshal(values, &p); err != nil {
		return
	}
	if !a.accept(p) {
		return
	}
	a.correct(p.CurrentTime)
	if a.player.IsPlaying() {
		a.player.Pause()
	}
	a.notify()
}

func (a *AudioSync) handleSeek(values json.RawMessage) {
	var p audioPayload
	if err := json.Unmarshal(values, &p); err != nil {
		return
	}
	if !a.accept(p) {
		return
	}
	a.player.Seek(p.CurrentTime)
	a.notify()
}
