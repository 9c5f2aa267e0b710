package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/auth"
	"github.com/pulsechat/pulse-server/internal/config"
	"github.com/pulsechat/pulse-server/internal/core"
	"github.com/pulsechat/pulse-server/internal/store"
)

// NewServer builds the HTTP server: REST room management, presence
// snapshot, health check, and the WebSocket event surface.
func NewServer(router *core.Router, tracker *core.Tracker, st store.RoomStore, verifier *auth.Verifier, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	roomHandlers := NewRoomHandlers(st, logger)
	presenceHandlers := NewPresenceHandlers(tracker, logger)

	api := engine.Group("/api")
	api.Use(AuthMiddleware(verifier, logger))
	{
		api.POST("/rooms", roomHandlers.CreateRoom)
		api.GET("/rooms", roomHandlers.ListRooms)
		api.GET("/rooms/:id", roomHandlers.GetRoom)
		api.PATCH("/rooms/:id", roomHandlers.UpdateRoom)
		api.DELETE("/rooms/:id", roomHandlers.DeleteRoom)
		api.GET("/rooms/:id/messages", roomHandlers.GetMessages)
		api.GET("/presence/online", presenceHandlers.GetOnlineUsers)
	}

	engine.GET("/ws", gin.WrapH(NewWSHandler(router, verifier, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
