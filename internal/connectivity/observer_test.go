package connectivity

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/outbox"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

type mockReplayer struct {
	mu       sync.Mutex
	replays  int
	cleanups int
}

func (r *mockReplayer) ReplayPending(context.Context) (outbox.ReplayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays++
	return outbox.ReplayResult{Synced: 1}, nil
}

func (r *mockReplayer) CleanupSynced() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
	return 1, nil
}

func (r *mockReplayer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replays, r.cleanups
}

func newTestObserver(minInterval time.Duration) (*Observer, *mockReplayer, *bus.Bus) {
	r := &mockReplayer{}
	b := bus.New()
	return NewObserver(r, b, zap.NewNop(), minInterval), r, b
}

func TestReplayOncePerTransition(t *testing.T) {
	o, r, _ := newTestObserver(0)
	ctx := context.Background()

	if o.IsOnline() {
		t.Fatal("observer should start offline")
	}

	o.SetOnline(ctx, true)
	if replays, cleanups := r.counts(); replays != 1 || cleanups != 1 {
		t.Errorf("replays = %d cleanups = %d, want 1 and 1", replays, cleanups)
	}

	// Same state again: no transition, no extra replay.
	o.SetOnline(ctx, true)
	if replays, _ := r.counts(); replays != 1 {
		t.Errorf("replays = %d, want still 1", replays)
	}

	// A full offline/online cycle triggers exactly one more.
	o.SetOnline(ctx, false)
	o.SetOnline(ctx, true)
	if replays, _ := r.counts(); replays != 2 {
		t.Errorf("replays = %d, want 2", replays)
	}
}

func TestGoingOfflineDoesNotReplay(t *testing.T) {
	o, r, _ := newTestObserver(0)

	o.SetOnline(context.Background(), false)
	if replays, _ := r.counts(); replays != 0 {
		t.Errorf("replays = %d, want 0", replays)
	}
}

func TestFlappingThrottled(t *testing.T) {
	o, r, _ := newTestObserver(time.Hour)
	ctx := context.Background()

	o.SetOnline(ctx, true)
	o.SetOnline(ctx, false)
	o.SetOnline(ctx, true)
	o.SetOnline(ctx, false)
	o.SetOnline(ctx, true)

	if replays, _ := r.counts(); replays != 1 {
		t.Errorf("replays = %d, want only the first within the interval", replays)
	}
}

func TestListenersNotifiedAndRemovable(t *testing.T) {
	o, _, _ := newTestObserver(0)
	ctx := context.Background()

	var got []bool
	remove := o.AddListener(func(online bool) { got = append(got, online) })

	o.SetOnline(ctx, true)
	o.SetOnline(ctx, false)
	remove()
	remove()
	o.SetOnline(ctx, true)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("notifications = %v, want [true false]", got)
	}
}

func TestPanickingListenerDoesNotBlockReplay(t *testing.T) {
	o, r, _ := newTestObserver(0)

	o.AddListener(func(bool) { panic("boom") })
	o.SetOnline(context.Background(), true)

	if replays, _ := r.counts(); replays != 1 {
		t.Errorf("replays = %d, want replay despite panicking listener", replays)
	}
}

type stubSender struct{}

func (stubSender) SendMessage(_ context.Context, m *store.OutboxMessage) (*store.Message, error) {
	return &store.Message{
		ChatID: m.ChatID, MsgID: "srv-" + m.ClientMsgID, ClientID: m.ClientMsgID,
		SenderID: m.UserID, Content: m.Content, FromMe: true,
		Status: store.MessageConfirmed, CreatedAt: m.CreatedAt,
	}, nil
}

// Offline enqueue, reconnect, delivery, cleanup: the whole recovery path
// against a real sqlite store.
func TestRecoveryDrainsOutbox(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	q := outbox.NewQueue(db, stubSender{}, b, zap.NewNop(), "me", 3)
	o := NewObserver(q, b, zap.NewNop(), 0)

	entry, err := q.Enqueue("c1", "hello", "", false)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := q.ListByChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != store.OutboxPending || entries[0].Content != "hello" {
		t.Fatalf("entries = %+v, want one pending hello", entries)
	}

	o.SetOnline(context.Background(), true)

	entries, err = q.ListByChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want outbox drained and cleaned", entries)
	}
	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "srv-"+entry.ClientMsgID {
		t.Errorf("cache = %+v, want the confirmed message", msgs)
	}
}

func TestTransitionsPublishedOnBus(t *testing.T) {
	o, _, b := newTestObserver(0)
	events, unsub := b.Subscribe("net.", 4)
	defer unsub()

	o.SetOnline(context.Background(), true)
	o.SetOnline(context.Background(), false)

	evt := <-events
	if evt.Kind != bus.KindNetworkOnline {
		t.Errorf("first event = %q, want net.online", evt.Kind)
	}
	evt = <-events
	if evt.Kind != bus.KindNetworkOffline {
		t.Errorf("second event = %q, want net.offline", evt.Kind)
	}
}
