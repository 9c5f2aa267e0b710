package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client's user to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client's user from a room.
	CommandLeaveRoom
	// CommandSendMessage delivers a chat message to room participants.
	CommandSendMessage
	// CommandTypingStart signals the user started typing in a room.
	CommandTypingStart
	// CommandTypingStop signals the user stopped typing in a room.
	CommandTypingStop
	// CommandReadMessage marks a message as read by the user.
	CommandReadMessage
)

// Command represents an action requested by a client. RequestID is a
// client-generated id used for acknowledgement and retry deduplication.
type Command struct {
	Kind      CommandKind
	RequestID string
	Room      string
	Content   string
	MessageID string
}
