package domain

import "time"

// ContentKind describes the payload type of an inbound message. The agent
// only processes text; everything else is dropped at the ingest boundary.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentReaction ContentKind = "reaction"
	ContentReceipt  ContentKind = "receipt"
	ContentRemote   ContentKind = "remote_attachment"
)

// InboundMessage is one message delivered by the transport. Immutable once
// produced. The transport may redeliver (at-least-once), so ID is the dedup key.
type InboundMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Kind           ContentKind
	SentAt         time.Time
}

// HistoryEntry is one turn kept in a conversation context.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"` // user | agent
	Content   string    `json:"content"`
	Trigger   string    `json:"trigger,omitempty"`
}

// ConversationContext is the per user/conversation working state. Created
// lazily on first contact, mutated on every processed message, evicted after
// an idle window. Mirrored to the profile store as a write-through cache;
// the in-memory copy stays authoritative.
type ConversationContext struct {
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	LastActivity   time.Time      `json:"last_activity"`
	MessageCount   int            `json:"message_count"`
	SetupStatus    string         `json:"setup_status"`
	History        []HistoryEntry `json:"history"`
}
