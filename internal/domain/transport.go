package domain

import "context"

// Transport is the boundary to the encrypted messaging network. Only the
// operations the agent actually consumes are modeled here; the relay client
// in internal/transport is the production implementation.
type Transport interface {
	// Identity returns the agent's own stable inbox id, used to filter
	// self-authored messages.
	Identity() string

	// SyncAll pulls the full conversation list from the network.
	SyncAll(ctx context.Context) error

	ListConversations(ctx context.Context) ([]Conversation, error)
	ConversationByID(ctx context.Context, id string) (Conversation, error)

	// StreamMessages opens a live subscription across all conversations.
	StreamMessages(ctx context.Context) (MessageStream, error)
}

// Conversation is a single chat the agent participates in.
type Conversation interface {
	ID() string
	IsGroup() bool
	MemberCount() int

	Sync(ctx context.Context) error

	// LastInbound returns the newest message not authored by the agent,
	// or nil when the conversation has none.
	LastInbound(ctx context.Context) (*InboundMessage, error)

	Send(ctx context.Context, text string) error
}

// MessageStream yields inbound messages in order of arrival.
type MessageStream interface {
	// Next blocks until a message arrives, the stream fails, or ctx is done.
	Next(ctx context.Context) (*InboundMessage, error)
	Close() error
}
