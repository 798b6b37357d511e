package merge

import (
	"testing"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
)

func confirmedMsg(id, clientID, sender, content string, at int64, fromMe bool) store.Message {
	return store.Message{
		ChatID: "c1", MsgID: id, ClientID: clientID, SenderID: sender,
		Content: content, FromMe: fromMe, Status: store.MessageConfirmed, CreatedAt: at,
	}
}

func queuedMsg(clientID, content string, at int64, status string) store.OutboxMessage {
	return store.OutboxMessage{
		ClientMsgID: clientID, ChatID: "c1", UserID: "me",
		Content: content, Status: status, CreatedAt: at,
	}
}

func TestQueuedAppendedAndOrdered(t *testing.T) {
	confirmed := []store.Message{
		confirmedMsg("m2", "", "other", "second", 2000, false),
		confirmedMsg("m1", "", "other", "first", 1000, false),
	}
	queued := []store.OutboxMessage{queuedMsg("q1", "mine", 1500, store.OutboxPending)}

	out := Messages(confirmed, queued)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].MsgID != "m1" || out[1].MsgID != "q1" || out[2].MsgID != "m2" {
		t.Errorf("order = %s %s %s, want m1 q1 m2", out[0].MsgID, out[1].MsgID, out[2].MsgID)
	}
	if out[1].Status != store.MessagePending || !out[1].FromMe {
		t.Errorf("queued entry = %+v, want pending from me", out[1])
	}
}

func TestClientIDDedupExact(t *testing.T) {
	confirmed := []store.Message{confirmedMsg("m1", "q1", "me", "hello", 1000, true)}
	queued := []store.OutboxMessage{queuedMsg("q1", "hello", 900, store.OutboxPending)}

	out := Messages(confirmed, queued)
	if len(out) != 1 || out[0].MsgID != "m1" {
		t.Errorf("out = %+v, want only confirmed m1", out)
	}
}

func TestContentHeuristicWithinWindow(t *testing.T) {
	// Confirmed echo without a client id: fall back to sender+content+time.
	confirmed := []store.Message{confirmedMsg("m1", "", "me", "hello", 5000, true)}

	out := Messages(confirmed, []store.OutboxMessage{queuedMsg("q1", "hello", 5000+dedupWindowMs, store.OutboxPending)})
	if len(out) != 1 {
		t.Errorf("len = %d, want dedup inside window", len(out))
	}

	out = Messages(confirmed, []store.OutboxMessage{queuedMsg("q2", "hello", 5001+dedupWindowMs, store.OutboxPending)})
	if len(out) != 2 {
		t.Errorf("len = %d, want no dedup outside window", len(out))
	}
}

func TestHeuristicIgnoresOtherSenders(t *testing.T) {
	confirmed := []store.Message{confirmedMsg("m1", "", "other", "hello", 1000, false)}
	queued := []store.OutboxMessage{queuedMsg("q1", "hello", 1000, store.OutboxPending)}

	out := Messages(confirmed, queued)
	if len(out) != 2 {
		t.Errorf("len = %d, want queued kept when confirmed is from another sender", len(out))
	}
}

func TestOptimisticRowCollapsedAgainstConfirmedEcho(t *testing.T) {
	// The optimistic cache row survived promotion because the echo carried
	// no client id; the heuristic must still collapse it.
	cached := []store.Message{
		confirmedMsg("srv-1", "", "me", "hello", 2000, true),
		{
			ChatID: "c1", MsgID: "q1", ClientID: "q1", SenderID: "me",
			Content: "hello", FromMe: true, Status: store.MessagePending, CreatedAt: 1000,
		},
	}

	out := Messages(cached, nil)
	if len(out) != 1 || out[0].MsgID != "srv-1" {
		t.Errorf("out = %+v, want only the confirmed echo", out)
	}
}

func TestOptimisticRowKeptWithoutConfirmedMatch(t *testing.T) {
	cached := []store.Message{
		confirmedMsg("m1", "", "other", "hi", 500, false),
		{
			ChatID: "c1", MsgID: "q1", ClientID: "q1", SenderID: "me",
			Content: "unsent", FromMe: true, Status: store.MessagePending, CreatedAt: 1000,
		},
	}

	out := Messages(cached, nil)
	if len(out) != 2 || out[1].Status != store.MessagePending {
		t.Errorf("out = %+v, want confirmed plus the pending row", out)
	}
}

func TestQueuedHiddenBehindItsOptimisticRow(t *testing.T) {
	cached := []store.Message{{
		ChatID: "c1", MsgID: "q1", ClientID: "q1", SenderID: "me",
		Content: "once", FromMe: true, Status: store.MessagePending, CreatedAt: 1000,
	}}
	queued := []store.OutboxMessage{queuedMsg("q1", "once", 1000, store.OutboxPending)}

	out := Messages(cached, queued)
	if len(out) != 1 {
		t.Errorf("out = %+v, want the entry shown once", out)
	}
}

func TestSyncedEntriesSkipped(t *testing.T) {
	queued := []store.OutboxMessage{
		queuedMsg("q1", "done", 1000, store.OutboxSynced),
		queuedMsg("q2", "stuck", 2000, store.OutboxFailed),
	}

	out := Messages(nil, queued)
	if len(out) != 1 || out[0].MsgID != "q2" {
		t.Fatalf("out = %+v, want only the failed entry", out)
	}
	if out[0].Status != store.MessageFailed {
		t.Errorf("status = %q, want failed", out[0].Status)
	}
}

func TestStableOrderOnEqualTimestamps(t *testing.T) {
	confirmed := []store.Message{
		confirmedMsg("m1", "", "other", "a", 1000, false),
		confirmedMsg("m2", "", "other", "b", 1000, false),
	}

	out := Messages(confirmed, nil)
	if out[0].MsgID != "m1" || out[1].MsgID != "m2" {
		t.Errorf("order = %s %s, want input order preserved", out[0].MsgID, out[1].MsgID)
	}
}

func TestEmptyInputs(t *testing.T) {
	if out := Messages(nil, nil); len(out) != 0 {
		t.Errorf("out = %+v, want empty", out)
	}
}
