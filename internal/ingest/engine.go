// Package ingest writes realtime events into the local message cache. It is
// the only consumer of the rt. bus namespace, which keeps cache writes in
// one place regardless of how many views are subscribed upstream.
package ingest

import (
	"sync"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

// Engine consumes realtime events from the bus and persists them.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	unsub   func()
	done    chan struct{}
	started bool
	wg      sync.WaitGroup
}

func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{db: db, bus: b, logger: logger}
}

// Start subscribes to the realtime namespace and begins ingesting. Calling
// Start on a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	events, unsub := e.bus.Subscribe("rt.", 256)
	e.unsub = unsub
	e.done = make(chan struct{})
	e.started = true

	e.wg.Add(1)
	go e.run(events, e.done)
	e.logger.Info("cache ingest started")
}

// Stop unsubscribes and waits for the ingest loop to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	unsub := e.unsub
	done := e.done
	e.mu.Unlock()

	unsub()
	close(done)
	// Let any in-flight write finish before callers tear down the store.
	e.wg.Wait()
	e.logger.Info("cache ingest stopped")
}

func (e *Engine) run(events <-chan bus.Event, done chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-done:
			return
		case evt := <-events:
			e.handle(evt)
		}
	}
}

func (e *Engine) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindRealtimeMessage:
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		e.ingestMessage(msg)
	case bus.KindRealtimeChat:
		chat, ok := evt.Payload.(*store.Chat)
		if !ok {
			return
		}
		e.ingestChat(chat)
	}
}

func (e *Engine) ingestMessage(msg *store.Message) {
	if err := e.db.UpsertMessage(msg); err != nil {
		e.logger.Error("message upsert failed",
			zap.String("msg_id", msg.MsgID), zap.Error(err))
		return
	}
	if err := e.db.TouchChat(msg.ChatID, msg.CreatedAt, msg.Content); err != nil {
		e.logger.Warn("chat touch failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
	// The confirmed row replaces any optimistic copy queued locally.
	if msg.ClientID != "" {
		if err := e.db.PromoteOptimistic(msg.ChatID, msg.ClientID); err != nil {
			e.logger.Warn("optimistic promote failed",
				zap.String("client_id", msg.ClientID), zap.Error(err))
		}
	}
	e.bus.Publish(bus.Event{Kind: bus.KindCacheMessage, Timestamp: time.Now(), Payload: msg})
}

func (e *Engine) ingestChat(chat *store.Chat) {
	if err := e.db.UpsertChat(chat); err != nil {
		e.logger.Error("chat upsert failed", zap.String("chat_id", chat.ID), zap.Error(err))
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.KindCacheChat, Timestamp: time.Now(), Payload: chat})
}
