package core

import "github.com/pulsechat/pulse-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage EventKind = iota
	// EventTyping notifies clients that a user started or stopped typing.
	EventTyping
	// EventPresence notifies clients that a user went online or offline.
	EventPresence
	// EventRead notifies clients that a user read a message.
	EventRead
	// EventHistory delivers recent history to a client upon joining a room.
	EventHistory
	// EventAck confirms a client request was processed.
	EventAck
	// EventError reports a domain error for a client request.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	RequestID string // set on acks and errors, echoes the triggering request
	Room      string
	User      string // acting user for typing/presence/read events
	Online    bool   // for EventPresence
	Typing    bool   // for EventTyping
	MessageID string // for EventRead and EventAck
	Message   *store.Message
	Messages  []*store.Message // for EventHistory
	Error     *Error
}

func ackEvent(requestID, messageID string) *Event {
	return &Event{Kind: EventAck, RequestID: requestID, MessageID: messageID}
}

func errorEvent(requestID string, err *Error) *Event {
	return &Event{Kind: EventError, RequestID: requestID, Error: err}
}
