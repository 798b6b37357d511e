package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, client_id, sender_id, sender_name, content, media_url, is_ai_generated, from_me, status, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			client_id = excluded.client_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			media_url = excluded.media_url,
			status = excluded.status`,
		m.ChatID, m.MsgID, m.ClientID, m.SenderID, m.SenderName, m.Content, m.MediaURL,
		m.IsAIGenerated, m.FromMe, m.Status, m.CreatedAt, now)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, client_id, sender_id, sender_name, content, media_url, is_ai_generated, from_me, status, created_at
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.ClientID, &m.SenderID, &m.SenderName,
			&m.Content, &m.MediaURL, &m.IsAIGenerated, &m.FromMe, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PromoteOptimistic replaces an optimistic row (msg_id = client id) once the
// confirmed version of the same message exists. No-op if no such row.
func (db *DB) PromoteOptimistic(chatID, clientID string) error {
	_, err := db.Exec(`
		DELETE FROM messages
		WHERE chat_id = ? AND msg_id = ? AND status != ?`,
		chatID, clientID, MessageConfirmed)
	return err
}
