// Package merge folds locally queued messages into a confirmed message list
// for display, dropping copies the backend has already echoed back.
package merge

import (
	"sort"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
)

// dedupWindowMs bounds the content-heuristic fallback: a local copy
// matching a confirmed message by sender and content counts as a duplicate
// only when their timestamps are within this window.
const dedupWindowMs = 10_000

// Messages merges cached rows with queued outbox entries, ordered by
// ascending timestamp. A pending or failed copy (cached optimistic row or
// queued entry) is dropped when a confirmed message carries its client id,
// or failing that when sender, content and a nearby timestamp match. Synced
// outbox entries never appear; their confirmed counterpart is already in
// the list.
func Messages(cached []store.Message, queued []store.OutboxMessage) []store.Message {
	confirmed := make([]store.Message, 0, len(cached))
	var local []store.Message
	for _, m := range cached {
		if m.Status == store.MessageConfirmed {
			confirmed = append(confirmed, m)
		} else {
			local = append(local, m)
		}
	}

	confirmedIDs := make(map[string]struct{}, len(confirmed))
	for i := range confirmed {
		if confirmed[i].ClientID != "" {
			confirmedIDs[confirmed[i].ClientID] = struct{}{}
		}
	}

	out := make([]store.Message, 0, len(cached)+len(queued))
	out = append(out, confirmed...)

	// Optimistic cache rows that survived promotion, e.g. when the backend
	// echo lacked a client id.
	localIDs := make(map[string]struct{}, len(local))
	for _, m := range local {
		if m.ClientID != "" {
			if _, ok := confirmedIDs[m.ClientID]; ok {
				continue
			}
		}
		if m.FromMe && hasConfirmedMatch(confirmed, m.SenderID, m.Content, m.CreatedAt) {
			continue
		}
		localIDs[m.ClientID] = struct{}{}
		out = append(out, m)
	}

	for i := range queued {
		q := &queued[i]
		if q.Status == store.OutboxSynced {
			continue
		}
		if _, ok := confirmedIDs[q.ClientMsgID]; ok {
			continue
		}
		// Already visible through its optimistic cache row.
		if _, ok := localIDs[q.ClientMsgID]; ok {
			continue
		}
		if hasConfirmedMatch(confirmed, q.UserID, q.Content, q.CreatedAt) {
			continue
		}
		out = append(out, asMessage(q))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// hasConfirmedMatch is the fallback for backends that do not echo client ids.
func hasConfirmedMatch(confirmed []store.Message, senderID, content string, createdAt int64) bool {
	for i := range confirmed {
		c := &confirmed[i]
		if !c.FromMe || c.SenderID != senderID || c.Content != content {
			continue
		}
		delta := c.CreatedAt - createdAt
		if delta < 0 {
			delta = -delta
		}
		if delta <= dedupWindowMs {
			return true
		}
	}
	return false
}

func asMessage(q *store.OutboxMessage) store.Message {
	status := store.MessagePending
	if q.Status == store.OutboxFailed {
		status = store.MessageFailed
	}
	return store.Message{
		ChatID:        q.ChatID,
		MsgID:         q.ClientMsgID,
		ClientID:      q.ClientMsgID,
		SenderID:      q.UserID,
		Content:       q.Content,
		MediaURL:      q.MediaURL,
		IsAIGenerated: q.IsAIGenerated,
		FromMe:        true,
		Status:        status,
		CreatedAt:     q.CreatedAt,
	}
}
