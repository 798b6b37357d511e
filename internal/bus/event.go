package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by namespace
// prefix, e.g. "rt." receives every realtime-derived event.
const (
	// Realtime change-feed events, payloads are decoded store rows.
	KindRealtimeMessage     = "rt.message"
	KindRealtimeChat        = "rt.chat"
	KindRealtimeParticipant = "rt.participant"
	KindRealtimeFriend      = "rt.friend"

	// Connectivity transitions from the observer.
	KindNetworkOnline  = "net.online"
	KindNetworkOffline = "net.offline"

	// Outbox lifecycle events.
	KindOutboxQueued = "outbox.queued"
	KindOutboxSynced = "outbox.synced"
	KindOutboxFailed = "outbox.failed"

	// Local cache writes, payload identifies the upserted row.
	KindCacheMessage = "cache.message_upserted"
	KindCacheChat    = "cache.chat_upserted"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
