package models

import "time"

// TTLOptions are the room lifespans (in hours) a creator may choose from.
var TTLOptions = []int{12, 24, 72}

// Room is a time-boxed chat namespace. OwnerSecret is the moderation
// capability token; it is returned once at creation and never serialized
// afterwards.
type Room struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TTLHours    int       `json:"ttlHours"`
	Capacity    int       `json:"capacity"`
	OwnerSecret string    `json:"-"`
}

// Session is one participant's membership in a room for the duration of
// one connection.
type Session struct {
	SessionID string    `json:"sessionId"`
	RoomID    string    `json:"roomId"`
	Nickname  string    `json:"nickname"`
	Color     string    `json:"color"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Message is immutable once created. Nickname and Color freeze the
// sender's identity at send time; later renames do not rewrite history.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SessionID string    `json:"sessionId"`
	Nickname  string    `json:"nickname"`
	Color     string    `json:"color"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type CreateRoomRequest struct {
	TTLHours int `json:"ttlHours"`
}

type CreateRoomResponse struct {
	RoomID      string    `json:"roomId"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expiresAt"`
	OwnerSecret string    `json:"ownerSecret"`
}

type RoomInfoResponse struct {
	Room             *Room `json:"room"`
	ParticipantCount int   `json:"participantCount"`
}

type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}
