package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

type mockSender struct {
	failUntil map[string]int // client id -> attempts to fail before succeeding
	attempts  map[string]int
	sendErr   error
}

func newMockSender() *mockSender {
	return &mockSender{failUntil: make(map[string]int), attempts: make(map[string]int)}
}

func (s *mockSender) SendMessage(_ context.Context, m *store.OutboxMessage) (*store.Message, error) {
	s.attempts[m.ClientMsgID]++
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if s.attempts[m.ClientMsgID] <= s.failUntil[m.ClientMsgID] {
		return nil, errors.New("backend unavailable")
	}
	return &store.Message{
		ChatID:   m.ChatID,
		MsgID:    "srv-" + m.ClientMsgID,
		ClientID: m.ClientMsgID,
		SenderID: m.UserID,
		Content:  m.Content,
		FromMe:   true,
		Status:   store.MessageConfirmed,
	}, nil
}

func testQueue(t *testing.T, sender Sender) (*Queue, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	return NewQueue(db, sender, b, zap.NewNop(), "me", 3), db, b
}

func TestEnqueueDurableAndOptimistic(t *testing.T) {
	q, db, b := testQueue(t, newMockSender())

	events, unsub := b.Subscribe("outbox.", 4)
	defer unsub()

	entry, err := q.Enqueue("c1", "hello", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if entry.ClientMsgID == "" || entry.Status != store.OutboxPending {
		t.Errorf("entry = %+v, want pending with client id", entry)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != entry.ClientMsgID {
		t.Fatalf("pending = %+v, want the queued entry", pending)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != store.MessagePending || !msgs[0].FromMe {
		t.Errorf("cache = %+v, want one optimistic pending row", msgs)
	}

	evt := <-events
	if evt.Kind != bus.KindOutboxQueued {
		t.Errorf("event kind = %q, want outbox.queued", evt.Kind)
	}
}

func TestReplayDeliversAndPromotes(t *testing.T) {
	sender := newMockSender()
	q, db, _ := testQueue(t, sender)

	entry, err := q.Enqueue("c1", "hello", "", false)
	if err != nil {
		t.Fatal(err)
	}

	res, err := q.ReplayPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want 1 synced", res)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("pending = %+v, want empty after replay", pending)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("cache rows = %d, want optimistic row replaced by confirmed", len(msgs))
	}
	if msgs[0].MsgID != "srv-"+entry.ClientMsgID || msgs[0].Status != store.MessageConfirmed {
		t.Errorf("cache row = %+v, want confirmed server message", msgs[0])
	}
}

func TestRetryProgressionToFailure(t *testing.T) {
	sender := newMockSender()
	sender.sendErr = errors.New("backend down")
	q, db, b := testQueue(t, sender)

	events, unsub := b.Subscribe(bus.KindOutboxFailed, 4)
	defer unsub()

	entry, err := q.Enqueue("c1", "doomed", "", false)
	if err != nil {
		t.Fatal(err)
	}

	// Each replay pass bumps the retry count once; the third flips to failed.
	for want := 1; want <= 3; want++ {
		res, err := q.ReplayPending(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		entries, _ := db.ListOutboxByChat("c1")
		if len(entries) != 1 {
			t.Fatalf("entries = %+v", entries)
		}
		if entries[0].RetryCount != want {
			t.Errorf("retry count after pass %d = %d", want, entries[0].RetryCount)
		}
		if want < 3 {
			if entries[0].Status != store.OutboxPending || res.Failed != 0 {
				t.Errorf("pass %d: status = %q failed = %d, want still pending", want, entries[0].Status, res.Failed)
			}
		} else {
			if entries[0].Status != store.OutboxFailed || res.Failed != 1 {
				t.Errorf("pass 3: status = %q failed = %d, want failed", entries[0].Status, res.Failed)
			}
		}
	}

	// A failed entry stays failed and is skipped by later replays.
	attempts := sender.attempts[entry.ClientMsgID]
	if _, err := q.ReplayPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.attempts[entry.ClientMsgID] != attempts {
		t.Error("failed entry was retried again")
	}

	evt := <-events
	failure, ok := evt.Payload.(*SendFailure)
	if !ok {
		t.Fatalf("payload type = %T, want *SendFailure", evt.Payload)
	}
	if failure.Attempts != 3 {
		t.Errorf("failure attempts = %d, want 3", failure.Attempts)
	}

	msgs, _ := db.ListMessages("c1", 0, 10)
	if len(msgs) != 1 || msgs[0].Status != store.MessageFailed {
		t.Errorf("cache = %+v, want failed indicator row", msgs)
	}
}

func TestReplayEntriesAreIndependent(t *testing.T) {
	sender := newMockSender()
	q, db, _ := testQueue(t, sender)

	bad, err := q.Enqueue("c1", "will fail", "", false)
	if err != nil {
		t.Fatal(err)
	}
	good, err := q.Enqueue("c1", "will pass", "", false)
	if err != nil {
		t.Fatal(err)
	}
	sender.failUntil[bad.ClientMsgID] = 100

	res, err := q.ReplayPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 1 {
		t.Errorf("synced = %d, want the healthy entry delivered", res.Synced)
	}

	entries, _ := db.ListOutboxByChat("c1")
	byID := make(map[string]store.OutboxMessage)
	for _, e := range entries {
		byID[e.ClientMsgID] = e
	}
	if byID[bad.ClientMsgID].Status != store.OutboxPending {
		t.Errorf("bad entry = %+v, want still pending", byID[bad.ClientMsgID])
	}
	if byID[good.ClientMsgID].Status != store.OutboxSynced {
		t.Errorf("good entry = %+v, want synced", byID[good.ClientMsgID])
	}
}

func TestCleanupSyncedKeepsFailed(t *testing.T) {
	sender := newMockSender()
	q, db, _ := testQueue(t, sender)

	if _, err := q.Enqueue("c1", "ok", "", false); err != nil {
		t.Fatal(err)
	}
	doomed, err := q.Enqueue("c1", "doomed", "", false)
	if err != nil {
		t.Fatal(err)
	}
	sender.failUntil[doomed.ClientMsgID] = 100

	for i := 0; i < 3; i++ {
		if _, err := q.ReplayPending(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	n, err := q.CleanupSynced()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	entries, _ := db.ListOutboxByChat("c1")
	if len(entries) != 1 || entries[0].Status != store.OutboxFailed {
		t.Errorf("entries = %+v, want only the failed one retained", entries)
	}
}

func TestDeleteRemovesEntryAndCacheRow(t *testing.T) {
	q, db, _ := testQueue(t, newMockSender())

	entry, err := q.Enqueue("c1", "dismiss me", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Delete("c1", entry.ClientMsgID); err != nil {
		t.Fatal(err)
	}

	entries, _ := db.ListOutboxByChat("c1")
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want empty", entries)
	}
	msgs, _ := db.ListMessages("c1", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("cache = %+v, want optimistic row gone", msgs)
	}
}
