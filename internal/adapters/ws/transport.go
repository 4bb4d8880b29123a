// Package ws is the client half of the room transport: one websocket to
// the relay, with logical channels multiplexed inside each frame.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"liveclass/internal/core"
)

var (
	ErrNotConnected = errors.New("ws: not connected")
	ErrBackpressure = errors.New("ws: send buffer full")
)

type wireFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Transport implements core.RoomTransport over a single websocket dial.
// Ordering per sender rides on the connection; there is no replay and no
// delivery confirmation.
type Transport struct {
	url string

	mu       sync.RWMutex
	conn     *websocket.Conn
	send     chan []byte
	state    core.ConnectionState
	handlers map[string][]func(core.Frame)
	cancel   context.CancelFunc
}

func NewTransport(url string) *Transport {
	return &Transport{
		url:      url,
		state:    core.StateDisconnected,
		handlers: make(map[string][]func(core.Frame)),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	// Reconnecting through a live transport must not strand the old pumps.
	t.mu.Lock()
	old := t.conn
	oldCancel := t.cancel
	t.conn = nil
	t.cancel = nil
	t.mu.Unlock()
	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		_ = old.Close()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.mu.Lock()
		t.state = core.StateDisconnected
		t.mu.Unlock()
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.send = make(chan []byte, 64)
	t.state = core.StateConnected
	t.cancel = cancel
	t.mu.Unlock()

	go t.writePump(pumpCtx, conn)
	go t.readPump(pumpCtx, conn)
	log.Info().Str("module", "adapters.ws").Str("url", t.url).Msg("transport connected")
	return nil
}

func (t *Transport) Leave(context.Context) error {
	t.mu.Lock()
	conn := t.conn
	cancel := t.cancel
	t.conn = nil
	t.cancel = nil
	t.state = core.StateDisconnected
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (t *Transport) State() core.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Transport) Subscribe(channel string, fn func(core.Frame)) {
	t.mu.Lock()
	t.handlers[channel] = append(t.handlers[channel], fn)
	t.mu.Unlock()
}

func (t *Transport) Publish(channel string, data core.Frame) error {
	frame, err := json.Marshal(wireFrame{Channel: channel, Data: json.RawMessage(data)})
	if err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != core.StateConnected || t.send == nil {
		return ErrNotConnected
	}
	select {
	case t.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

func (t *Transport) writePump(ctx context.Context, conn *websocket.Conn) {
	t.mu.RLock()
	send := t.send
	t.mu.RUnlock()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (t *Transport) readPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.state = core.StateDisconnected
		}
		t.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("readPump read error")
				return
			}
			var f wireFrame
			if err := json.Unmarshal(data, &f); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("dropped malformed frame")
				continue
			}
			t.mu.RLock()
			snapshot := append([]func(core.Frame){}, t.handlers[f.Channel]...)
			t.mu.RUnlock()
			for _, fn := range snapshot {
				fn(core.Frame(f.Data))
			}
		}
	}
}
