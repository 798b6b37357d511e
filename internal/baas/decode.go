package baas

import (
	"encoding/json"
	"fmt"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
)

// ToStoreMessage converts a backend message row into the cache shape.
func (r *MessageRow) ToStoreMessage() *store.Message {
	return &store.Message{
		ChatID:        r.ChatID,
		MsgID:         r.ID,
		ClientID:      r.ClientID,
		SenderID:      r.SenderID,
		SenderName:    r.SenderName,
		Content:       r.Content,
		MediaURL:      r.MediaURL,
		IsAIGenerated: r.IsAIGenerated,
		Status:        store.MessageConfirmed,
		CreatedAt:     r.CreatedAt.UnixMilli(),
	}
}

// ToStoreChat converts a backend chat row into the cache shape.
func (r *ChatRow) ToStoreChat() *store.Chat {
	return &store.Chat{
		ID:                 r.ID,
		Name:               r.Name,
		IsGroup:            r.IsGroup,
		LastMessagePreview: r.LastMessage,
		LastMessageAt:      r.UpdatedAt.UnixMilli(),
	}
}

// DecodeMessage parses the row payload of a messages-table change event.
func DecodeMessage(raw json.RawMessage) (*MessageRow, error) {
	var r MessageRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode message row: %w", err)
	}
	return &r, nil
}

// DecodeChat parses the row payload of a chats-table change event.
func DecodeChat(raw json.RawMessage) (*ChatRow, error) {
	var r ChatRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode chat row: %w", err)
	}
	return &r, nil
}

// DecodeParticipant parses the row payload of a participants-table change event.
func DecodeParticipant(raw json.RawMessage) (*ParticipantRow, error) {
	var r ParticipantRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode participant row: %w", err)
	}
	return &r, nil
}

// DecodeFriendRequest parses the row payload of a friend-requests change event.
func DecodeFriendRequest(raw json.RawMessage) (*FriendRequestRow, error) {
	var r FriendRequestRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode friend request row: %w", err)
	}
	return &r, nil
}

// DecodeNotification parses the row payload of a notifications change event.
func DecodeNotification(raw json.RawMessage) (*NotificationRow, error) {
	var r NotificationRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode notification row: %w", err)
	}
	return &r, nil
}
