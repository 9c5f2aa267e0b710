package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/pulsechat/pulse-server/internal/store"
)

// MembershipCache answers "can user X receive events for room Y on this
// process" without a store round-trip on the hot path. The room store's
// participant list stays authoritative; the cache is rebuilt on
// (re)connect and invalidated on membership changes.
//
// Forward index: room -> users, used for room-local broadcasts.
// Reverse index: user -> rooms, used for presence fan-out and hydration.
type MembershipCache struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]struct{} // room -> users
	users    map[string]map[string]struct{} // user -> rooms
	degraded map[string]struct{}            // users whose hydration failed
}

// NewMembershipCache constructs an empty cache.
func NewMembershipCache() *MembershipCache {
	return &MembershipCache{
		rooms:    make(map[string]map[string]struct{}),
		users:    make(map[string]map[string]struct{}),
		degraded: make(map[string]struct{}),
	}
}

// Hydrate populates the cache for a user from the room store. Called on
// the user's first connection to this process, before any of their
// events are processed. On store failure the user is marked degraded so
// join/send are rejected with a retryable error instead of silently
// granting or denying access.
func (m *MembershipCache) Hydrate(ctx context.Context, st store.RoomStore, userID string) error {
	rooms, err := st.ListUserRooms(ctx, userID)
	if err != nil {
		m.mu.Lock()
		m.degraded[userID] = struct{}{}
		m.mu.Unlock()
		return fmt.Errorf("hydrate %s: %w", userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.degraded, userID)
	m.dropUserLocked(userID)
	for _, room := range rooms {
		m.addLocked(userID, room.ID)
	}
	return nil
}

// Subscribe records that the user now receives events for the room.
// Must be called only after the corresponding store mutation succeeded.
func (m *MembershipCache) Subscribe(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(userID, roomID)
}

// Unsubscribe removes the user's subscription to the room.
func (m *MembershipCache) Unsubscribe(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if users, ok := m.rooms[roomID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if rooms, ok := m.users[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.users, userID)
		}
	}
}

// IsSubscribed is the O(1) membership check gating every inbound event.
func (m *MembershipCache) IsSubscribed(userID, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID][roomID]
	return ok
}

// IsDegraded reports whether the user's hydration failed and has not
// been retried successfully.
func (m *MembershipCache) IsDegraded(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.degraded[userID]
	return ok
}

// UserRooms returns the rooms the user is subscribed to on this process.
func (m *MembershipCache) UserRooms(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := m.users[userID]
	if len(rooms) == 0 {
		return nil
	}
	result := make([]string, 0, len(rooms))
	for roomID := range rooms {
		result = append(result, roomID)
	}
	return result
}

// RoomUsers returns the users subscribed to the room on this process.
func (m *MembershipCache) RoomUsers(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := m.rooms[roomID]
	if len(users) == 0 {
		return nil
	}
	result := make([]string, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}

// Forget drops all cache state for a user. Called when the user's last
// connection to this process closes; the cache never outlives the
// connections it serves.
func (m *MembershipCache) Forget(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropUserLocked(userID)
	delete(m.degraded, userID)
}

func (m *MembershipCache) addLocked(userID, roomID string) {
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]struct{})
	}
	m.rooms[roomID][userID] = struct{}{}
	if m.users[userID] == nil {
		m.users[userID] = make(map[string]struct{})
	}
	m.users[userID][roomID] = struct{}{}
}

func (m *MembershipCache) dropUserLocked(userID string) {
	for roomID := range m.users[userID] {
		if users, ok := m.rooms[roomID]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
	delete(m.users, userID)
}
