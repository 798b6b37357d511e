package store

// Outbox entry statuses. An entry moves pending -> synced exactly once, or
// pending -> failed after the retry ceiling; both are terminal.
const (
	OutboxPending = "pending"
	OutboxSynced  = "synced"
	OutboxFailed  = "failed"
)

// Message cache statuses. Confirmed rows came from the backend; pending and
// failed rows mirror outbox entries for optimistic display.
const (
	MessageConfirmed = "confirmed"
	MessagePending   = "pending"
	MessageFailed    = "failed"
)

// Chat represents cached chat metadata.
type Chat struct {
	ID                 string
	Name               string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents a cached message. MsgID is the server id for confirmed
// rows; for optimistic rows it equals the client-generated id until the
// confirmed version replaces it.
type Message struct {
	ID            int64
	ChatID        string
	MsgID         string
	ClientID      string
	SenderID      string
	SenderName    string
	Content       string
	MediaURL      string
	IsAIGenerated bool
	FromMe        bool
	Status        string
	CreatedAt     int64 // unix milliseconds
}

// OutboxMessage represents a queued outgoing message awaiting delivery.
type OutboxMessage struct {
	ID            int64
	ClientMsgID   string
	ChatID        string
	UserID        string
	Content       string
	MediaURL      string
	IsAIGenerated bool
	Status        string // pending, synced, failed
	RetryCount    int
	LastError     string
	ServerMsgID   string
	CreatedAt     int64 // unix milliseconds
	UpdatedAt     int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
