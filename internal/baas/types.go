package baas

import (
	"encoding/json"
	"time"
)

// ChangeType identifies the kind of row change pushed on a channel.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Tables exposed by the hosted backend that the sync core consumes.
const (
	TableMessages       = "messages"
	TableChats          = "chats"
	TableParticipants   = "chat_participants"
	TableFriendRequests = "friend_requests"
	TableNotifications  = "notifications"
)

// ChangeEvent is a single row change delivered on a realtime channel.
// New is set for INSERT/UPDATE, Old for UPDATE/DELETE.
type ChangeEvent struct {
	Type  ChangeType      `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// MessageRow mirrors a row of the messages table.
type MessageRow struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name,omitempty"`
	Content       string    `json:"content"`
	MediaURL      string    `json:"media_url,omitempty"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	ClientID      string    `json:"client_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatRow mirrors a row of the chats table.
type ChatRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsGroup     bool      `json:"is_group"`
	LastMessage string    `json:"last_message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ParticipantRow mirrors a row of the chat_participants table.
type ParticipantRow struct {
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// FriendRequestRow mirrors a row of the friend_requests table.
// Status is one of pending, accepted, rejected, blocked.
type FriendRequestRow struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationRow mirrors a row of the notifications table.
type NotificationRow struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProfileRow mirrors a row of the profiles table.
type ProfileRow struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
