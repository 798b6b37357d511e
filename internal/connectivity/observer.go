// Package connectivity tracks online state and drives outbox recovery when
// the network comes back.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/outbox"
	"go.uber.org/zap"
)

// Replayer drains the outbox backlog. Implemented by the outbox queue.
type Replayer interface {
	ReplayPending(ctx context.Context) (outbox.ReplayResult, error)
	CleanupSynced() (int, error)
}

// Observer holds the current connectivity state. Each offline-to-online
// transition triggers exactly one replay pass followed by cleanup of the
// delivered entries. Rapid flapping is throttled by minInterval.
type Observer struct {
	replayer    Replayer
	bus         *bus.Bus
	logger      *zap.Logger
	minInterval time.Duration

	mu         sync.Mutex
	online     bool
	lastReplay time.Time
	listeners  map[int]func(bool)
	nextID     int
}

// NewObserver starts in the offline state; the app seeds the real state
// once the stream connects. minInterval of zero disables throttling.
func NewObserver(replayer Replayer, b *bus.Bus, logger *zap.Logger, minInterval time.Duration) *Observer {
	return &Observer{
		replayer:    replayer,
		bus:         b,
		logger:      logger,
		minInterval: minInterval,
		listeners:   make(map[int]func(bool)),
	}
}

// IsOnline reports the current state.
func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// AddListener registers a callback for state transitions and returns its
// remove function. The remove function is idempotent.
func (o *Observer) AddListener(fn func(online bool)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// SetOnline records a state change. Setting the current state again is a
// no-op. On an offline-to-online transition the pending outbox is replayed
// and synced entries are cleaned up before SetOnline returns.
func (o *Observer) SetOnline(ctx context.Context, online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	listeners := make([]func(bool), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}

	replay := false
	if online {
		if o.minInterval > 0 && !o.lastReplay.IsZero() && time.Since(o.lastReplay) < o.minInterval {
			o.logger.Debug("skipping replay, reconnected too soon",
				zap.Duration("since_last", time.Since(o.lastReplay)))
		} else {
			replay = true
			o.lastReplay = time.Now()
		}
	}
	o.mu.Unlock()

	kind := bus.KindNetworkOffline
	if online {
		kind = bus.KindNetworkOnline
	}
	o.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
	o.logger.Info("connectivity changed", zap.Bool("online", online))

	for _, fn := range listeners {
		o.notify(fn, online)
	}

	if replay {
		o.recover(ctx)
	}
}

func (o *Observer) notify(fn func(bool), online bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("connectivity listener panicked", zap.Any("panic", r))
		}
	}()
	fn(online)
}

func (o *Observer) recover(ctx context.Context) {
	res, err := o.replayer.ReplayPending(ctx)
	if err != nil {
		o.logger.Error("outbox replay failed", zap.Error(err))
		return
	}
	if res.Synced > 0 || res.Failed > 0 {
		o.logger.Info("outbox replayed",
			zap.Int("synced", res.Synced), zap.Int("failed", res.Failed))
	}
	if _, err := o.replayer.CleanupSynced(); err != nil {
		o.logger.Error("outbox cleanup failed", zap.Error(err))
	}
}
