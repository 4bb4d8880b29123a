// Package command multiplexes named commands over one broadcast channel of
// the room transport and dispatches inbound envelopes by command name.
package command

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"liveclass/internal/core"
)

// TransportChannel is the logical channel every command envelope rides on.
const TransportChannel = "commands"

// Command names carried in the envelope. The block response/navigation
// commands ride their own transport channels (see Exercise sync) but share
// the envelope shape.
const (
	CursorMove  = "CURSOR_MOVE"
	CursorLeave = "CURSOR_LEAVE"

	TextSelect   = "TEXT_SELECT"
	TextDeselect = "TEXT_DESELECT"

	AudioPlay  = "AUDIO_PLAY"
	AudioPause = "AUDIO_PAUSE"
	AudioSeek  = "AUDIO_SEEK"

	WhiteboardUpdate = "WHITEBOARD_UPDATE"

	BlockResponse   = "BLOCK_RESPONSE"
	BlockNavigation = "BLOCK_NAVIGATION"

	SetLesson   = "SET_LESSON"
	RequestSync = "REQUEST_SYNC"
	RaiseHand   = "RAISE_HAND"
)

// Envelope is the unit of transport: fire-and-forget, no ack, no sequence
// number across senders.
type Envelope struct {
	Command string          `json:"command"`
	Values  json.RawMessage `json:"values"`
}

type Handler func(values json.RawMessage)

type ListenerID uint64

type listener struct {
	id ListenerID
	fn Handler
}

// Channel is the typed command layer. The listener registry tolerates
// removal from inside a running handler: dispatch iterates a snapshot.
type Channel struct {
	transport core.RoomTransport

	mu     sync.Mutex
	nextID ListenerID
	byName map[string][]listener
}

func NewChannel(t core.RoomTransport) *Channel {
	ch := &Channel{
		transport: t,
		byName:    make(map[string][]listener),
	}
	t.Subscribe(TransportChannel, ch.dispatch)
	return ch
}

// Send serializes and broadcasts {command, values} to all participants.
// Best-effort: a returned error means the local transport refused the
// frame, never that a peer missed it.
func (c *Channel) Send(name string, values any) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal %s values: %w", name, err)
	}
	data, err := json.Marshal(Envelope{Command: name, Values: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return c.transport.Publish(TransportChannel, data)
}

func (c *Channel) AddListener(name string, fn Handler) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.byName[name] = append(c.byName[name], listener{id: id, fn: fn})
	return id
}

func (c *Channel) RemoveListener(name string, id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.byName[name]
	for i, l := range ls {
		if l.id == id {
			// Copy-on-delete keeps any in-flight dispatch snapshot intact.
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(c.byName, name)
			} else {
				c.byName[name] = next
			}
			return
		}
	}
}

// Close drops every listener. The transport subscription stays; frames
// arriving afterwards fall through dispatch with no match.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName = make(map[string][]listener)
}

func (c *Channel) dispatch(frame core.Frame) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Debug().Err(err).Str("module", "command").Msg("dropped malformed envelope")
		return
	}
	if env.Command == "" {
		log.Debug().Str("module", "command").Msg("dropped envelope without command")
		return
	}

	c.mu.Lock()
	snapshot := c.byName[env.Command]
	c.mu.Unlock()

	// Unknown commands are silently dropped.
	for _, l := range snapshot {
		l.fn(env.Values)
	}
}
