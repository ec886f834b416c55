package models

type EventType string

// Inbound (client to server) event types.
const (
	EventRoomJoin       EventType = "room:join"
	EventMessageSend    EventType = "message:send"
	EventUpdateNickname EventType = "user:updateNickname"
	EventEject          EventType = "moderation:eject"
	EventBan            EventType = "moderation:ban"
	EventTransferOwner  EventType = "moderation:transferOwner"
)

// Outbound (server to client) event types.
const (
	EventAck              EventType = "ack"
	EventMessageNew       EventType = "message:new"
	EventUserJoined       EventType = "user:joined"
	EventUserLeft         EventType = "user:left"
	EventUserUpdated      EventType = "user:updated"
	EventOwnerIdentified  EventType = "owner:identified"
	EventOwnerTransferred EventType = "owner:transferred"
	EventUserEjected      EventType = "user:ejected"
	EventUserBanned       EventType = "user:banned"
	EventRoomExpired      EventType = "room:expired"
	EventError            EventType = "error"
)

// ClientEvent is one inbound protocol frame. Fields beyond Type are
// populated per event type; RequestID, when set, is echoed on the ack.
type ClientEvent struct {
	Type            EventType `json:"type"`
	RequestID       string    `json:"requestId,omitempty"`
	RoomID          string    `json:"roomId,omitempty"`
	OwnerSecret     string    `json:"ownerSecret,omitempty"`
	Content         string    `json:"content,omitempty"`
	Nickname        string    `json:"nickname,omitempty"`
	TargetSessionID string    `json:"targetSessionId,omitempty"`
}

// ServerEvent is a pushed (non-ack) frame delivered to one connection or
// broadcast to a room.
type ServerEvent struct {
	Type                   EventType `json:"type"`
	Message                *Message  `json:"message,omitempty"`
	SessionID              string    `json:"sessionId,omitempty"`
	Nickname               string    `json:"nickname,omitempty"`
	Color                  string    `json:"color,omitempty"`
	OwnerSessionID         string    `json:"ownerSessionId,omitempty"`
	PreviousOwnerSessionID string    `json:"previousOwnerSessionId,omitempty"`
	Reason                 string    `json:"reason,omitempty"`
	Error                  string    `json:"error,omitempty"`
}

// Ack is the response frame for one inbound request. Join acks carry the
// room snapshot; everything else resolves to success plus an optional
// error or warning list.
type Ack struct {
	Type           EventType  `json:"type"`
	RequestID      string     `json:"requestId,omitempty"`
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
	Room           *Room      `json:"room,omitempty"`
	Session        *Session   `json:"session,omitempty"`
	RecentMessages []*Message `json:"recentMessages,omitempty"`
	OwnerSessionID string     `json:"ownerSessionId,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}
