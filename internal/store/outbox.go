package store

import "time"

// QueueOutbox adds a message to the send outbox with status pending.
func (db *DB) QueueOutbox(m *OutboxMessage) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, chat_id, user_id, content, media_url, is_ai_generated, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ClientMsgID, m.ChatID, m.UserID, m.Content, m.MediaURL, m.IsAIGenerated, OutboxPending, m.CreatedAt, now)
	return err
}

// MarkOutboxSynced marks an entry synced with the server message id. Terminal.
func (db *DB) MarkOutboxSynced(clientMsgID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, server_msg_id = ?, updated_at = ?
		WHERE client_msg_id = ? AND status = ?`,
		OutboxSynced, serverMsgID, now, clientMsgID, OutboxPending)
	return err
}

// MarkOutboxFailed marks an entry failed with an error message. Terminal;
// the entry is retained for user-visible indication.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, last_error = ?, updated_at = ?
		WHERE client_msg_id = ?`,
		OutboxFailed, errMsg, now, clientMsgID)
	return err
}

// IncrementOutboxRetry bumps the retry counter on a still-pending entry.
func (db *DB) IncrementOutboxRetry(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, updated_at = ?
		WHERE client_msg_id = ?`,
		errMsg, now, clientMsgID)
	return err
}

// PendingOutbox returns pending entries oldest first.
func (db *DB) PendingOutbox() ([]OutboxMessage, error) {
	return db.queryOutbox(`
		SELECT id, client_msg_id, chat_id, user_id, content, media_url, is_ai_generated, status, retry_count, last_error, server_msg_id, created_at, updated_at
		FROM outbox WHERE status = ? ORDER BY created_at ASC`, OutboxPending)
}

// ListOutboxByChat returns all entries for a chat regardless of status,
// oldest first.
func (db *DB) ListOutboxByChat(chatID string) ([]OutboxMessage, error) {
	return db.queryOutbox(`
		SELECT id, client_msg_id, chat_id, user_id, content, media_url, is_ai_generated, status, retry_count, last_error, server_msg_id, created_at, updated_at
		FROM outbox WHERE chat_id = ? ORDER BY created_at ASC`, chatID)
}

// CleanupSynced deletes all synced entries and returns the number removed.
func (db *DB) CleanupSynced() (int, error) {
	res, err := db.Exec(`DELETE FROM outbox WHERE status = ?`, OutboxSynced)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteOutbox removes a single entry by client id.
func (db *DB) DeleteOutbox(clientMsgID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_msg_id = ?`, clientMsgID)
	return err
}

func (db *DB) queryOutbox(query string, args ...any) ([]OutboxMessage, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxMessage
	for rows.Next() {
		var e OutboxMessage
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ChatID, &e.UserID, &e.Content, &e.MediaURL,
			&e.IsAIGenerated, &e.Status, &e.RetryCount, &e.LastError, &e.ServerMsgID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
