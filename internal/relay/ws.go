package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"liveclass/internal/core"
	"liveclass/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// WSController upgrades join requests and pumps frames between the
// websocket and the room.
type WSController struct {
	Hub *Hub
}

func NewWSController(hub *Hub) *WSController {
	return &WSController{Hub: hub}
}

// HandleJoin upgrades and attaches the caller to the room named in the
// path. The client token cookie identifies the member across reconnects.
func (ctl *WSController) HandleJoin(ctx context.Context, c *gin.Context) {
	member := MemberID(c.GetString("client_token"))
	roomName := domain.RoomName(c.Param("name"))
	log.Info().Str("module", "relay.ws").Str("member", string(member)).Str("room", string(roomName)).Msg("join request")

	room := ctl.Hub.GetOrCreate(roomName)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay.ws").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 64),
	}

	if err := room.AddMember(member, conn); err != nil {
		log.Warn().Err(err).Str("module", "relay.ws").Str("room", string(roomName)).Msg("join rejected")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, room, member, conn)
}

func (ctl *WSController) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "relay.ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay.ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, room *Room, member MemberID, c *wsConn) {
	defer func() {
		room.RemoveMember(member)
		c.Close()
		cancel()
		log.Info().Str("module", "relay.ws").Str("member", string(member)).Msg("readPump closing")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "relay.ws").Str("member", string(member)).Msg("readPump read error")
				return
			}
			// Frames are relayed verbatim; the command envelope is the
			// clients' business.
			res := room.Broadcast(member, data)
			for _, slow := range res.Dropped {
				log.Warn().Str("module", "relay.ws").Str("member", string(slow)).Msg("dropped frame for slow member")
			}
		}
	}
}
