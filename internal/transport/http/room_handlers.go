package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/store"
	"github.com/pulsechat/pulse-server/internal/utils"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store store.RoomStore
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.RoomStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Type         string   `json:"type" binding:"required,oneof=direct group"`
	Name         string   `json:"name" binding:"max=64"`
	Avatar       string   `json:"avatar" binding:"max=256"`
	Participants []string `json:"participants"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	Avatar       string   `json:"avatar,omitempty"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"created_at"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:           room.ID,
		Type:         string(room.Type),
		Name:         room.Name,
		Avatar:       room.Avatar,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// The creator is always a participant; duplicates are collapsed while
	// preserving insertion order.
	participants := []string{identity.ID}
	seen := map[string]struct{}{identity.ID: {}}
	for _, p := range req.Participants {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		participants = append(participants, p)
	}

	if store.RoomType(req.Type) == store.RoomTypeDirect && len(participants) != 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "direct rooms need exactly two participants"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), &store.Room{
		ID:           utils.NewID(),
		Type:         store.RoomType(req.Type),
		Name:         req.Name,
		Avatar:       req.Avatar,
		Participants: participants,
	})
	if err != nil {
		h.log.Error().Err(err).Str("creator", identity.ID).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("creator", identity.ID).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms handles listing the caller's rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.store.ListUserRooms(c.Request.Context(), identity.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user", identity.ID).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}
	c.JSON(http.StatusOK, response)
}

func parsePositiveInt(raw string) (int, error) {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, strconv.ErrRange
	}
	return parsed, nil
}

// GetRoom returns a single room the caller participates in.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", c.Param("id")).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !room.HasParticipant(identity.ID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// UpdateRoomRequest represents a metadata patch.
type UpdateRoomRequest struct {
	Name   *string `json:"name" binding:"omitempty,max=64"`
	Avatar *string `json:"avatar" binding:"omitempty,max=256"`
}

// UpdateRoom patches room metadata.
// PATCH /api/rooms/:id
func (h *RoomHandlers) UpdateRoom(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !room.HasParticipant(identity.ID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	room, err = h.store.UpdateRoom(c.Request.Context(), room.ID, store.RoomPatch{Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		h.log.Error().Err(err).Str("room", c.Param("id")).Msg("failed to update room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// DeleteRoom removes a group room on behalf of a participant.
// DELETE /api/rooms/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !room.HasParticipant(identity.ID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}
	// Direct rooms are deleted implicitly when the last participant leaves.
	if room.Type == store.RoomTypeDirect {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "direct rooms cannot be deleted explicitly"})
		return
	}

	if _, err := h.store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
		h.log.Error().Err(err).Str("room", room.ID).Msg("failed to delete room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("user", identity.ID).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        string   `json:"id"`
	Room      string   `json:"room"`
	Sender    string   `json:"sender"`
	Text      string   `json:"text"`
	ReadBy    []string `json:"read_by,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// GetMessages returns a page of room history, newest first.
// GET /api/rooms/:id/messages?limit=&before=
func (h *RoomHandlers) GetMessages(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !room.HasParticipant(identity.ID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			limit = parsed
		}
	}

	messages, err := h.store.GetMessages(c.Request.Context(), room.ID, limit, c.Query("before"))
	if err != nil {
		h.log.Error().Err(err).Str("room", room.ID).Msg("failed to get messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:        msg.ID,
			Room:      msg.RoomID,
			Sender:    msg.Sender,
			Text:      msg.Content,
			ReadBy:    msg.ReadBy,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}
