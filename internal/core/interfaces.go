package core

import (
	"context"
	"encoding/json"

	"liveclass/internal/domain"
)

// Frame is a raw serialized payload carried over one logical channel.
type Frame []byte

// ConnectionState is the terminal status surfaced to the UI; the
// synchronizers never retry on their own.
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
)

// RoomTransport abstracts the call session: best-effort broadcast with
// per-sender ordering, no replay to late joiners, no delivery confirmation.
// Owned by the collaboration session; the session must Leave() it.
type RoomTransport interface {
	Connect(ctx context.Context) error
	Leave(ctx context.Context) error

	// Publish broadcasts to every other participant, fire-and-forget.
	Publish(channel string, data Frame) error
	// Subscribe registers fn for inbound frames on channel. Frames the
	// transport echoes back to their sender are not filtered here.
	Subscribe(channel string, fn func(Frame))

	State() ConnectionState
}

// PeerWatcher is implemented by transports that surface join/leave events.
type PeerWatcher interface {
	OnPeerJoined(fn func(domain.Participant))
	OnPeerLeft(fn func(domain.ParticipantID))
}

// Recorder is the external recording service. Start/stop pairs bound one
// recording segment; failures are best-effort at every call site.
type Recorder interface {
	StartEgress(ctx context.Context, sessionID domain.SessionID, room domain.RoomName) (egressID string, err error)
	StopEgress(ctx context.Context, egressID string, sessionID domain.SessionID) error
}

// SceneElement is one record of the drawing canvas. The payload is opaque;
// only id and version take part in merging. Within one client, version is
// monotonically non-decreasing per id.
type SceneElement struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CanvasWidget is the opaque drawing surface: a scene-element list plus a
// change hook. Rendering is its problem, merging is ours.
type CanvasWidget interface {
	Elements() []SceneElement
	SetElements([]SceneElement)
	OnChange(fn func())
}

// AudioPlayer is the shared audio element for one audio block.
type AudioPlayer interface {
	Block() domain.BlockID
	IsPlaying() bool
	CurrentTime() float64
	Play()
	Pause()
	Seek(seconds float64)
}
