package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/core"
)

// PresenceHandlers provides HTTP handlers for presence endpoints.
type PresenceHandlers struct {
	tracker *core.Tracker
	log     *zerolog.Logger
}

// NewPresenceHandlers creates a new presence handlers instance.
func NewPresenceHandlers(tracker *core.Tracker, logger *zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{tracker: tracker, log: logger}
}

// OnlineUsersResponse is a point-in-time snapshot, not a subscription.
type OnlineUsersResponse struct {
	Users []string `json:"users"`
}

// GetOnlineUsers returns a bounded snapshot of online users.
// GET /api/presence/online?limit=
func (h *PresenceHandlers) GetOnlineUsers(c *gin.Context) {
	if _, ok := identityFromContext(c); !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			limit = parsed
		}
	}

	users, err := h.tracker.GetOnlineUsers(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to get online users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if users == nil {
		users = []string{}
	}

	c.JSON(http.StatusOK, OnlineUsersResponse{Users: users})
}
