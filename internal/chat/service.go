// Package chat is the read/write surface the UI talks to. Sends always go
// through the durable outbox; reads merge the local cache with whatever is
// still queued.
package chat

import (
	"context"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/merge"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/outbox"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

// ConnectivitySource reports whether the backend is reachable.
type ConnectivitySource interface {
	IsOnline() bool
}

// Backfiller pulls confirmed history from the backend.
type Backfiller interface {
	FetchMessages(ctx context.Context, chatID string, beforeMs int64, limit int) ([]store.Message, error)
}

// Service exposes chat reads and sends.
type Service struct {
	db     *store.DB
	queue  *outbox.Queue
	conn   ConnectivitySource
	remote Backfiller
	logger *zap.Logger
}

func NewService(db *store.DB, queue *outbox.Queue, conn ConnectivitySource, remote Backfiller, logger *zap.Logger) *Service {
	return &Service{db: db, queue: queue, conn: conn, remote: remote, logger: logger}
}

// Send queues a message and, when online, drains the outbox immediately so
// the new message goes out in order behind any backlog. The returned message
// is the optimistic pending row; confirmation arrives through the cache
// events once the backend echoes it.
func (s *Service) Send(ctx context.Context, chatID, content, mediaURL string, isAIGenerated bool) (*store.Message, error) {
	entry, err := s.queue.Enqueue(chatID, content, mediaURL, isAIGenerated)
	if err != nil {
		return nil, err
	}
	if err := s.db.TouchChat(chatID, entry.CreatedAt, content); err != nil {
		s.logger.Warn("chat touch failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	if s.conn.IsOnline() {
		if _, err := s.queue.ReplayPending(ctx); err != nil {
			s.logger.Warn("immediate delivery failed, message stays queued",
				zap.String("client_msg_id", entry.ClientMsgID), zap.Error(err))
		}
	}

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
	}, nil
}

// History returns a chat's messages in ascending timestamp order, with
// queued outbox entries folded in so unsent messages stay visible.
func (s *Service) History(chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	cached, err := s.db.ListMessages(chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	queued, err := s.queue.ListByChat(chatID)
	if err != nil {
		return nil, err
	}
	return merge.Messages(cached, queued), nil
}

// Backfill fetches older confirmed history from the backend into the cache
// and returns how many rows landed.
func (s *Service) Backfill(ctx context.Context, chatID string, beforeTs int64, limit int) (int, error) {
	msgs, err := s.remote.FetchMessages(ctx, chatID, beforeTs, limit)
	if err != nil {
		return 0, err
	}
	stored := 0
	for i := range msgs {
		if err := s.db.UpsertMessage(&msgs[i]); err != nil {
			s.logger.Warn("backfill upsert failed",
				zap.String("msg_id", msgs[i].MsgID), zap.Error(err))
			continue
		}
		stored++
	}
	if stored > 0 {
		newest := msgs[0]
		if err := s.db.TouchChat(chatID, newest.CreatedAt, newest.Content); err != nil {
			s.logger.Warn("chat touch failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return stored, nil
}

// ListChats returns cached chats, most recently active first.
func (s *Service) ListChats(limit, offset int) ([]store.Chat, error) {
	return s.db.ListChats(limit, offset)
}

// Search runs a full-text query over cached message contents.
func (s *Service) Search(query, chatID string, limit int) ([]store.SearchResult, error) {
	return s.db.SearchMessages(query, chatID, limit)
}

// DismissFailed drops a failed queued message after the user gives up on it.
func (s *Service) DismissFailed(chatID, clientMsgID string) error {
	return s.queue.Delete(chatID, clientMsgID)
}
