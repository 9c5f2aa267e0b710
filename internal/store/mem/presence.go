// Package mem provides an in-memory presence store for development and
// tests, used when no Redis address is configured.
package mem

import (
	"context"
	"sync"
	"time"
)

// PresenceStore implements store.PresenceStore in process memory.
type PresenceStore struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	lastSeen map[string]time.Time
}

// NewPresenceStore returns an empty in-memory presence store.
func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// SetOnline marks the user online.
func (p *PresenceStore) SetOnline(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = struct{}{}
	return nil
}

// SetOffline marks the user offline with the given last-seen time.
func (p *PresenceStore) SetOffline(_ context.Context, userID string, lastSeen time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	p.lastSeen[userID] = lastSeen
	return nil
}

// GetOnlineUsers returns up to limit online user ids.
func (p *PresenceStore) GetOnlineUsers(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.online))
	for userID := range p.online {
		if len(users) == limit {
			break
		}
		users = append(users, userID)
	}
	return users, nil
}

// IsOnline reports whether the user is currently marked online.
func (p *PresenceStore) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// LastSeen returns the recorded last-seen time for a user.
func (p *PresenceStore) LastSeen(userID string) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen[userID]
}
