package core

import "sync"

// PresenceNotifier receives connection-count transitions from the
// registry. Registry size change is the only trigger for presence
// transitions.
type PresenceNotifier interface {
	// UserConnected is called when a user's first connection registers.
	UserConnected(userID string)
	// UserDisconnected is called when a user's last connection unregisters.
	UserDisconnected(userID string)
}

// Registry tracks live, reachable transport connections per user. It is
// the only component that knows who is reachable right now.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[*Client]struct{}
	notifier PresenceNotifier
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[*Client]struct{}),
	}
}

// SetNotifier wires the presence tracker. Must be called before the
// first Register.
func (r *Registry) SetNotifier(n PresenceNotifier) {
	r.notifier = n
}

// Register adds a connection for its user. Idempotent per client handle.
// Signals the notifier if this is the user's first connection.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	set, ok := r.conns[c.User.ID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[c.User.ID] = set
	}
	if _, exists := set[c]; exists {
		r.mu.Unlock()
		return
	}
	set[c] = struct{}{}
	first := len(set) == 1
	r.mu.Unlock()

	if first && r.notifier != nil {
		r.notifier.UserConnected(c.User.ID)
	}
}

// Unregister removes a connection. Signals the notifier if it was the
// user's last connection so the offline grace window can begin.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	set, ok := r.conns[c.User.ID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := set[c]; !exists {
		r.mu.Unlock()
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(r.conns, c.User.ID)
	}
	r.mu.Unlock()

	if last && r.notifier != nil {
		r.notifier.UserDisconnected(c.User.ID)
	}
}

// Connections returns the live connections for a user. Never blocks.
func (r *Registry) Connections(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// HasConnections reports whether the user has at least one live
// connection on this process.
func (r *Registry) HasConnections(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}
