package sync

import (
	"encoding/json"
	"sync"
	"testing"

	"liveclass/internal/adapters/local"
	"liveclass/internal/command"
	"liveclass/internal/core"
	"liveclass/internal/domain"
)

// peers is one wired teacher/student pair over a loopback transport.
type peers struct {
	teacher   *domain.Participant
	student   *domain.Participant
	teacherCh *command.Channel
	studentCh *command.Channel
	teacherTr *local.Transport
	studentTr *local.Transport
}

func newPeers(t *testing.T) *peers {
	t.Helper()
	ta, tb := local.NewPair()
	if err := ta.Connect(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := tb.Connect(t.Context()); err != nil {
		t.Fatal(err)
	}
	teacher, err := domain.NewParticipant("Vera", domain.RoleTeacher)
	if err != nil {
		t.Fatal(err)
	}
	student, err := domain.NewParticipant("Ilya", domain.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	return &peers{
		teacher:   teacher,
		student:   student,
		teacherCh: command.NewChannel(ta),
		studentCh: command.NewChannel(tb),
		teacherTr: ta,
		studentTr: tb,
	}
}

// frameCounter counts raw frames landing on a transport's command channel.
type frameCounter struct {
	mu sync.Mutex
	n  int
}

func countFrames(tr *local.Transport) *frameCounter {
	fc := &frameCounter{}
	tr.Subscribe(command.TransportChannel, func(core.Frame) {
		fc.mu.Lock()
		fc.n++
		fc.mu.Unlock()
	})
	return fc
}

func (fc *frameCounter) count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.n
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// fakePlayer is an in-memory stand-in for the shared audio element.
type fakePlayer struct {
	mu      sync.Mutex
	block   domain.BlockID
	playing bool
	time    float64
	seeks   int
}

func newFakePlayer(block domain.BlockID) *fakePlayer {
	return &fakePlayer{block: block}
}

func (p *fakePlayer) Block() domain.BlockID { return p.block }

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *fakePlayer) Seek(seconds float64) {
	p.mu.Lock()
	p.time = seconds
	p.seeks++
	p.mu.Unlock()
}

func (p *fakePlayer) seekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seeks
}

func (p *fakePlayer) setTime(t float64) {
	p.mu.Lock()
	p.time = t
	p.mu.Unlock()
}

// fakeCanvas is an in-memory scene-element list with a change hook.
type fakeCanvas struct {
	mu       sync.Mutex
	elements []core.SceneElement
	onChange func()
}

func (c *fakeCanvas) Elements() []core.SceneElement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.SceneElement, len(c.elements))
	copy(out, c.elements)
	return out
}

func (c *fakeCanvas) SetElements(els []core.SceneElement) {
	c.mu.Lock()
	c.elements = els
	c.mu.Unlock()
}

func (c *fakeCanvas) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// draw mutates the local scene the way the widget would and fires the hook.
func (c *fakeCanvas) draw(els ...core.SceneElement) {
	c.mu.Lock()
	byID := make(map[string]int, len(c.elements))
	for i, el := range c.elements {
		byID[el.ID] = i
	}
	for _, el := range els {
		if i, ok := byID[el.ID]; ok {
			c.elements[i] = el
		} else {
			c.elements = append(c.elements, el)
		}
	}
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
