package relay

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"liveclass/internal/config"
	"liveclass/internal/domain"
)

// ClientTokenMiddleware pins a stable member identity to a cookie so a
// participant keeps the same seat across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LiveclassSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "relay.router").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": hub.List()})
	})

	api.GET("/rooms/:name", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		room, ok := hub.Get(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":         room.Name(),
			"member_count": room.MemberCount(),
		})
	})

	api.DELETE("/rooms/:name", func(c *gin.Context) {
		hub.StopRoom(domain.RoomName(c.Param("name")))
		c.Status(http.StatusNoContent)
	})

	ctl := NewWSController(hub)
	r.GET("/ws/rooms/:name", func(c *gin.Context) {
		ctl.HandleJoin(ctx, c)
	})

	return r
}
