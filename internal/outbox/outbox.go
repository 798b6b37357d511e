// Package outbox implements the durable send queue. Outgoing messages are
// written to sqlite before anything touches the network, so a crash or a
// dead connection never loses a message.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

const defaultRetryLimit = 3

// Sender delivers one queued message to the backend and returns the stored
// record. Implemented by the REST client.
type Sender interface {
	SendMessage(ctx context.Context, m *store.OutboxMessage) (*store.Message, error)
}

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Synced int
	Failed int
}

// Queue is the durable outbox. Enqueue persists first and answers fast;
// ReplayPending drains the backlog when connectivity allows.
type Queue struct {
	db         *store.DB
	sender     Sender
	bus        *bus.Bus
	logger     *zap.Logger
	userID     string
	retryLimit int

	replayMu sync.Mutex
}

func NewQueue(db *store.DB, sender Sender, b *bus.Bus, logger *zap.Logger, userID string, retryLimit int) *Queue {
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}
	return &Queue{
		db:         db,
		sender:     sender,
		bus:        b,
		logger:     logger,
		userID:     userID,
		retryLimit: retryLimit,
	}
}

// Enqueue stores an outgoing message durably and mirrors it into the message
// cache as an optimistic pending row. The entry is on disk before this
// returns; delivery happens later via ReplayPending.
func (q *Queue) Enqueue(chatID, content, mediaURL string, isAIGenerated bool) (*store.OutboxMessage, error) {
	entry := &store.OutboxMessage{
		ClientMsgID:   uuid.NewString(),
		ChatID:        chatID,
		UserID:        q.userID,
		Content:       content,
		MediaURL:      mediaURL,
		IsAIGenerated: isAIGenerated,
		Status:        store.OutboxPending,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := q.db.QueueOutbox(entry); err != nil {
		return nil, &StorageError{Op: "queue", Err: err}
	}

	// The optimistic cache row is display-only; the durable entry above is
	// the source of truth, so a cache miss here is not fatal.
	if err := q.db.UpsertMessage(optimisticRow(entry)); err != nil {
		q.logger.Warn("optimistic cache insert failed",
			zap.String("client_msg_id", entry.ClientMsgID), zap.Error(err))
	}

	q.bus.Publish(bus.Event{Kind: bus.KindOutboxQueued, Timestamp: time.Now(), Payload: entry})
	q.logger.Debug("message queued",
		zap.String("chat_id", chatID), zap.String("client_msg_id", entry.ClientMsgID))
	return entry, nil
}

// ListByChat returns every outbox entry for a chat, oldest first, including
// failed entries kept for user-visible indication.
func (q *Queue) ListByChat(chatID string) ([]store.OutboxMessage, error) {
	entries, err := q.db.ListOutboxByChat(chatID)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return entries, nil
}

// ReplayPending attempts delivery of every pending entry, oldest first.
// Entries are independent: one failure does not block the rest. An entry
// that exhausts the retry limit flips to failed and stays out of future
// replays. Only one replay runs at a time.
func (q *Queue) ReplayPending(ctx context.Context) (ReplayResult, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	var res ReplayResult
	entries, err := q.db.PendingOutbox()
	if err != nil {
		return res, &StorageError{Op: "load pending", Err: err}
	}
	if len(entries) == 0 {
		return res, nil
	}
	q.logger.Info("replaying outbox", zap.Int("pending", len(entries)))

	for i := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		entry := &entries[i]
		if q.deliver(ctx, entry) {
			res.Synced++
		} else if entry.Status == store.OutboxFailed {
			res.Failed++
		}
	}
	return res, nil
}

// CleanupSynced removes delivered entries from the outbox table.
func (q *Queue) CleanupSynced() (int, error) {
	n, err := q.db.CleanupSynced()
	if err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}
	if n > 0 {
		q.logger.Debug("outbox cleaned", zap.Int("removed", n))
	}
	return n, nil
}

// Delete discards one entry and its optimistic cache row, e.g. when the
// user dismisses a failed message.
func (q *Queue) Delete(chatID, clientMsgID string) error {
	if err := q.db.DeleteOutbox(clientMsgID); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if err := q.db.PromoteOptimistic(chatID, clientMsgID); err != nil {
		return &StorageError{Op: "delete cache row", Err: err}
	}
	return nil
}

// deliver sends one entry, updating its state in place. Returns true on a
// successful sync.
func (q *Queue) deliver(ctx context.Context, entry *store.OutboxMessage) bool {
	msg, err := q.sender.SendMessage(ctx, entry)
	if err == nil {
		if dbErr := q.db.MarkOutboxSynced(entry.ClientMsgID, msg.MsgID); dbErr != nil {
			q.logger.Error("mark synced failed",
				zap.String("client_msg_id", entry.ClientMsgID), zap.Error(dbErr))
			return false
		}
		entry.Status = store.OutboxSynced
		entry.ServerMsgID = msg.MsgID
		if dbErr := q.db.UpsertMessage(msg); dbErr != nil {
			q.logger.Warn("confirmed cache insert failed", zap.Error(dbErr))
		}
		if dbErr := q.db.PromoteOptimistic(entry.ChatID, entry.ClientMsgID); dbErr != nil {
			q.logger.Warn("optimistic promote failed", zap.Error(dbErr))
		}
		q.bus.Publish(bus.Event{Kind: bus.KindOutboxSynced, Timestamp: time.Now(), Payload: entry})
		return true
	}

	entry.RetryCount++
	failure := &SendFailure{ClientMsgID: entry.ClientMsgID, Attempts: entry.RetryCount, Err: err}
	if dbErr := q.db.IncrementOutboxRetry(entry.ClientMsgID, failure.Error()); dbErr != nil {
		q.logger.Error("retry bump failed",
			zap.String("client_msg_id", entry.ClientMsgID), zap.Error(dbErr))
		return false
	}

	if entry.RetryCount >= q.retryLimit {
		if dbErr := q.db.MarkOutboxFailed(entry.ClientMsgID, failure.Error()); dbErr != nil {
			q.logger.Error("mark failed failed",
				zap.String("client_msg_id", entry.ClientMsgID), zap.Error(dbErr))
			return false
		}
		entry.Status = store.OutboxFailed
		if dbErr := q.db.UpsertMessage(failedRow(entry)); dbErr != nil {
			q.logger.Warn("failed cache update failed", zap.Error(dbErr))
		}
		q.bus.Publish(bus.Event{Kind: bus.KindOutboxFailed, Timestamp: time.Now(), Payload: failure})
		q.logger.Warn("message delivery exhausted",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.Int("attempts", entry.RetryCount), zap.Error(err))
	} else {
		q.logger.Debug("message delivery failed, will retry",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.Int("attempt", entry.RetryCount), zap.Error(err))
	}
	return false
}

func optimisticRow(entry *store.OutboxMessage) *store.Message {
	return &store.Message{
		ChatID:        entry.ChatID,
		MsgID:         entry.ClientMsgID,
		ClientID:      entry.ClientMsgID,
		SenderID:      entry.UserID,
		Content:       entry.Content,
		MediaURL:      entry.MediaURL,
		IsAIGenerated: entry.IsAIGenerated,
		FromMe:        true,
		Status:        store.MessagePending,
		CreatedAt:     entry.CreatedAt,
	}
}

func failedRow(entry *store.OutboxMessage) *store.Message {
	row := optimisticRow(entry)
	row.Status = store.MessageFailed
	return row
}
