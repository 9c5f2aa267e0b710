package core

import (
	"sync"
	"time"
)

// Identity is a verified user as supplied by the authentication layer.
// It is immutable for the lifetime of a connection.
type Identity struct {
	ID          string
	DisplayName string
}

// Client is one live transport connection bound to an identity. A user
// may hold several clients at once (multi-device).
type Client struct {
	ID   string // connection id, unique per transport connection
	User Identity

	// Commands carries inbound requests; consumed by a single goroutine
	// so one sender's events are processed in submission order.
	Commands chan *Command
	// Events carries outbound pushes and acknowledgements.
	Events chan *Event

	dedup *dedupWindow
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, user Identity, dedupTTL time.Duration) *Client {
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return &Client{
		ID:       connID,
		User:     user,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 32),
		dedup:    newDedupWindow(dedupTTL),
	}
}

// send pushes an event to the client, dropping it if the consumer is
// too slow to keep up.
func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// dedupWindow remembers results of recently processed request ids so a
// retried request returns the original result instead of re-executing.
type dedupWindow struct {
	mu      sync.Mutex
	ttl     time.Duration
	results map[string]dedupEntry
}

type dedupEntry struct {
	event *Event
	at    time.Time
}

func newDedupWindow(ttl time.Duration) *dedupWindow {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &dedupWindow{
		ttl:     ttl,
		results: make(map[string]dedupEntry),
	}
}

// lookup returns the recorded result for a request id, if still fresh.
func (w *dedupWindow) lookup(requestID string) (*Event, bool) {
	if requestID == "" {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.results[requestID]
	if !ok {
		return nil, false
	}
	if time.Since(entry.at) > w.ttl {
		delete(w.results, requestID)
		return nil, false
	}
	return entry.event, true
}

// record stores the result for a request id and evicts stale entries.
func (w *dedupWindow) record(requestID string, ev *Event) {
	if requestID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for id, entry := range w.results {
		if now.Sub(entry.at) > w.ttl {
			delete(w.results, id)
		}
	}
	w.results[requestID] = dedupEntry{event: ev, at: now}
}
