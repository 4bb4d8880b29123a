// Package local provides an in-process room transport pair. Delivery is
// synchronous and lossless, which is stricter than the real transport, so
// anything relying on loss for correctness shows up as a test failure here.
package local

import (
	"context"
	"errors"
	"sync"

	"liveclass/internal/core"
)

var ErrNotConnected = errors.New("loopback: not connected")

// Transport is one half of a loopback pair.
type Transport struct {
	mu       sync.Mutex
	peer     *Transport
	state    core.ConnectionState
	echo     bool // also deliver own frames back to self
	handlers map[string][]func(core.Frame)
}

// NewPair returns two connected-to-be transports wired back to back.
func NewPair() (*Transport, *Transport) {
	a := &Transport{state: core.StateDisconnected, handlers: make(map[string][]func(core.Frame))}
	b := &Transport{state: core.StateDisconnected, handlers: make(map[string][]func(core.Frame))}
	a.peer, b.peer = b, a
	return a, b
}

// SetEcho makes Publish also dispatch to the local subscribers, imitating
// a transport that reflects the sender's own broadcast.
func (t *Transport) SetEcho(on bool) {
	t.mu.Lock()
	t.echo = on
	t.mu.Unlock()
}

func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	t.state = core.StateConnected
	t.mu.Unlock()
	return nil
}

func (t *Transport) Leave(context.Context) error {
	t.mu.Lock()
	t.state = core.StateDisconnected
	t.mu.Unlock()
	return nil
}

func (t *Transport) State() core.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Subscribe(channel string, fn func(core.Frame)) {
	t.mu.Lock()
	t.handlers[channel] = append(t.handlers[channel], fn)
	t.mu.Unlock()
}

func (t *Transport) Publish(channel string, data core.Frame) error {
	t.mu.Lock()
	if t.state != core.StateConnected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	echo := t.echo
	peer := t.peer
	t.mu.Unlock()

	if echo {
		t.deliver(channel, data)
	}
	if peer != nil && peer.State() == core.StateConnected {
		peer.deliver(channel, data)
	}
	return nil
}

func (t *Transport) deliver(channel string, data core.Frame) {
	t.mu.Lock()
	snapshot := append([]func(core.Frame){}, t.handlers[channel]...)
	t.mu.Unlock()
	for _, fn := range snapshot {
		fn(data)
	}
}
