package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/store"
)

// Tracker maintains and broadcasts online/offline state. It owns the
// offline grace timers: a user going offline is only reported after the
// grace window passes with no new connection, which absorbs page
// reloads and brief network loss without presence flapping.
type Tracker struct {
	store    store.PresenceStore
	cache    *MembershipCache
	registry *Registry
	log      *zerolog.Logger
	grace    time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	gen    map[string]uint64 // per-user transition sequence

	retryAttempts int
	retryBase     time.Duration
}

// NewTracker constructs a presence tracker.
func NewTracker(st store.PresenceStore, cache *MembershipCache, registry *Registry, logger *zerolog.Logger, grace time.Duration) *Tracker {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Tracker{
		store:         st,
		cache:         cache,
		registry:      registry,
		log:           logger,
		grace:         grace,
		timers:        make(map[string]*time.Timer),
		gen:           make(map[string]uint64),
		retryAttempts: 3,
		retryBase:     100 * time.Millisecond,
	}
}

// UserConnected handles a user's first connection: cancel any pending
// offline timer, persist online state, and broadcast to the user's rooms.
func (t *Tracker) UserConnected(userID string) {
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	t.gen[userID]++
	gen := t.gen[userID]
	t.mu.Unlock()

	t.broadcast(userID, true)
	go t.writeOnline(userID, gen)
}

// UserDisconnected handles a user's last connection closing: start the
// grace timer. If no connection registers before it fires, the user is
// marked offline.
func (t *Tracker) UserDisconnected(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen[userID]++
	gen := t.gen[userID]

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.grace, func() {
		t.graceExpired(userID, gen)
	})
}

func (t *Tracker) graceExpired(userID string, gen uint64) {
	t.mu.Lock()
	if t.gen[userID] != gen {
		// A newer transition superseded this timer.
		t.mu.Unlock()
		return
	}
	delete(t.timers, userID)
	t.mu.Unlock()

	if t.registry.HasConnections(userID) {
		return
	}

	t.broadcast(userID, false)
	// The cache entry lives as long as the presence lifecycle: dropping
	// it earlier would leave the offline broadcast with no rooms.
	t.cache.Forget(userID)
	t.writeOffline(userID, gen, time.Now().UTC())
}

// broadcast pushes a presence event to every local connection of every
// user sharing a room with the subject.
func (t *Tracker) broadcast(userID string, online bool) {
	ev := &Event{Kind: EventPresence, User: userID, Online: online}

	seen := make(map[string]struct{})
	for _, roomID := range t.cache.UserRooms(userID) {
		for _, member := range t.cache.RoomUsers(roomID) {
			if member == userID {
				continue
			}
			if _, dup := seen[member]; dup {
				continue
			}
			seen[member] = struct{}{}
			for _, c := range t.registry.Connections(member) {
				c.send(ev)
			}
		}
	}
}

// writeOnline persists the online record with backoff. If every attempt
// fails the registry remains authoritative for this process's fan-out
// decisions and a later reconciliation pass corrects the durable record.
func (t *Tracker) writeOnline(userID string, gen uint64) {
	t.withRetry(userID, gen, "set online", func(ctx context.Context) error {
		return t.store.SetOnline(ctx, userID)
	})
}

func (t *Tracker) writeOffline(userID string, gen uint64, lastSeen time.Time) {
	t.withRetry(userID, gen, "set offline", func(ctx context.Context) error {
		return t.store.SetOffline(ctx, userID, lastSeen)
	})
}

func (t *Tracker) withRetry(userID string, gen uint64, op string, fn func(context.Context) error) {
	backoff := t.retryBase
	for attempt := 0; attempt < t.retryAttempts; attempt++ {
		t.mu.Lock()
		stale := t.gen[userID] != gen
		t.mu.Unlock()
		if stale {
			// A newer transition owns the durable record now.
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := fn(ctx)
		cancel()
		if err == nil {
			return
		}

		t.log.Warn().Err(err).Str("user", userID).Str("op", op).Int("attempt", attempt+1).Msg("presence store write failed")
		time.Sleep(backoff)
		backoff *= 2
	}
	t.log.Error().Str("user", userID).Str("op", op).Msg("presence store write retries exhausted")
}

// GetOnlineUsers returns a bounded point-in-time snapshot of online
// users from the presence store.
func (t *Tracker) GetOnlineUsers(ctx context.Context, limit int) ([]string, error) {
	return t.store.GetOnlineUsers(ctx, limit)
}
