package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client. ID is a
// client-generated request id echoed on the acknowledgement; resending
// the same id within the dedup window returns the original result.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "room:join"
	InboundTypeLeave       = "room:leave"
	InboundTypeSend        = "message:send"
	InboundTypeTypingStart = "typing:start"
	InboundTypeTypingStop  = "typing:stop"
	InboundTypeRead        = "message:read"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"
)

// RoomData targets a room for join/leave/typing requests.
type RoomData struct {
	Room string `json:"room"`
}

// SendData is a chat message from the client.
type SendData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// ReadData marks a message as read.
type ReadData struct {
	Room      string `json:"room"`
	MessageID string `json:"message_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	ReqID string `json:"req_id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage notifies clients about a chat message in a room.
type EventMessage struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
}

// EventTyping notifies that a user started or stopped typing.
type EventTyping struct {
	Room   string `json:"room"`
	User   string `json:"user"`
	Typing bool   `json:"typing"`
}

// EventPresence notifies that a user went online or offline.
type EventPresence struct {
	User   string `json:"user"`
	Online bool   `json:"online"`
}

// EventRead notifies that a user read a message.
type EventRead struct {
	Room      string `json:"room"`
	User      string `json:"user"`
	MessageID string `json:"message_id"`
}

// EventHistory delivers recent messages to a client upon joining a room.
type EventHistory struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// AckData confirms a processed request; MessageID is set for sends and
// reads.
type AckData struct {
	MessageID string `json:"message_id,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	Retryable bool   `json:"retryable,omitempty"`
}
