package transport

import (
	"time"

	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
)

// Client -> server event names.
const (
	emitJoin    = "chat:join"
	emitLeave   = "chat:leave"
	emitMessage = "chat:message"
	emitTyping  = "chat:typing"
	emitRead    = "chat:read"
)

// Event is a server -> client event name bound to its payload type, so that
// Subscribe can decode without the caller naming the type twice.
type Event[T any] struct {
	Name string
}

// Server -> client events.
var (
	EventJoined         = Event[JoinedEvent]{Name: "chat:joined"}
	EventMessage        = Event[MessageEvent]{Name: "chat:message"}
	EventMessageDeleted = Event[MessageDeletedEvent]{Name: "chat:message:deleted"}
	EventMessagePinned  = Event[MessagePinnedEvent]{Name: "chat:message:pinned"}
	EventMemberJoined   = Event[MemberJoinedEvent]{Name: "chat:member:joined"}
	EventMemberLeft     = Event[MemberLeftEvent]{Name: "chat:member:left"}
	EventMemberMuted    = Event[MemberMutedEvent]{Name: "chat:member:muted"}
	EventTyping         = Event[TypingEvent]{Name: "chat:typing"}
	EventSettings       = Event[SettingsEvent]{Name: "chat:settings"}
	EventError          = Event[ErrorEvent]{Name: "chat:error"}
)

// RoomPayload addresses a room (an event's chat).
type RoomPayload struct {
	EventID string `json:"eventId"`
}

// MessagePayload is an outgoing chat:message.
type MessagePayload struct {
	EventID string `json:"eventId"`
	model.SendPayload
}

// ReadPayload marks a message as read.
type ReadPayload struct {
	EventID   string `json:"eventId"`
	MessageID string `json:"messageId"`
}

// JoinedEvent acknowledges a join with the most recent messages.
type JoinedEvent struct {
	RecentMessages []model.Message `json:"recentMessages"`
}

// MessageEvent carries a new message.
type MessageEvent struct {
	Message model.Message `json:"message"`
}

// MessageDeletedEvent reports a removed message.
type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
}

// MessagePinnedEvent carries a message whose pin state changed.
type MessagePinnedEvent struct {
	Message model.Message `json:"message"`
}

// MemberJoinedEvent reports a member coming online.
type MemberJoinedEvent struct {
	Member model.Member `json:"member"`
}

// MemberLeftEvent reports a member going away.
type MemberLeftEvent struct {
	UserID string `json:"userId"`
}

// MemberMutedEvent reports a mute change; a nil Until means unmuted.
type MemberMutedEvent struct {
	UserID string     `json:"userId"`
	Until  *time.Time `json:"until"`
}

// TypingEvent is the full list of users currently typing.
type TypingEvent struct {
	Users []model.TypingUser `json:"users"`
}

// SettingsEvent reports changed chat settings.
type SettingsEvent struct {
	SlowMode *int  `json:"slowMode,omitempty"`
	IsActive *bool `json:"isActive,omitempty"`
}

// ErrorEvent is a protocol-level rejection, e.g. "slow mode in effect".
type ErrorEvent struct {
	Message string `json:"message"`
}
