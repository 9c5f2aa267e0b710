package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Callers map these
// to the domain error taxonomy.
var (
	// ErrNotFound means the requested room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the backing store could not be reached; the
	// operation is safe to retry.
	ErrUnavailable = errors.New("store unavailable")
)

// RoomType defines different types of rooms.
type RoomType string

const (
	// RoomTypeDirect is a two-party conversation, deleted when the last
	// participant leaves.
	RoomTypeDirect RoomType = "direct"
	// RoomTypeGroup is a multi-party room, deleted only explicitly.
	RoomTypeGroup RoomType = "group"
)

// Room represents a chat room.
type Room struct {
	ID           string
	Type         RoomType
	Name         string
	Avatar       string
	Participants []string // insertion-ordered, unique user ids
	CreatedAt    time.Time
}

// HasParticipant reports whether userID is in the participant list.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// RoomPatch describes a partial update to a room. Nil fields are left
// unchanged.
type RoomPatch struct {
	Name              *string
	Avatar            *string
	AddParticipant    *string
	RemoveParticipant *string
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	RoomID    string
	Sender    string
	Content   string
	CreatedAt time.Time
	ReadBy    []string
}

// RoomStore handles room and message persistence.
type RoomStore interface {
	// CreateRoom persists a new room. The store assigns CreatedAt if zero.
	CreateRoom(ctx context.Context, room *Room) (*Room, error)

	// GetRoom retrieves a room by id. Returns ErrNotFound if absent.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// UpdateRoom applies a patch and returns the updated room.
	// Returns ErrNotFound if the room does not exist.
	UpdateRoom(ctx context.Context, id string, patch RoomPatch) (*Room, error)

	// DeleteRoom removes a room and its messages. Returns true if a room
	// was deleted.
	DeleteRoom(ctx context.Context, id string) (bool, error)

	// ListUserRooms returns every room the user is a participant of.
	ListUserRooms(ctx context.Context, userID string) ([]*Room, error)

	// AddMessage appends a message to its room's history.
	AddMessage(ctx context.Context, msg *Message) error

	// GetMessages retrieves messages from a room, newest first.
	// If beforeID is non-empty, only messages older than it are returned.
	GetMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*Message, error)

	// MarkRead records that userID has read the message. Idempotent.
	MarkRead(ctx context.Context, roomID, messageID, userID string) error
}

// PresenceStore handles durable online/offline state.
type PresenceStore interface {
	// SetOnline marks the user online.
	SetOnline(ctx context.Context, userID string) error

	// SetOffline marks the user offline with the given last-seen time.
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error

	// GetOnlineUsers returns a bounded snapshot of online user ids.
	GetOnlineUsers(ctx context.Context, limit int) ([]string, error)
}
