package domain

import (
	"context"
	"time"
)

// UserProfile is the per-user record owned by the profile store. It is the
// only state that must survive restarts without loss.
//
// Invariant: FkeyID set implies StealthAddress set. Identity claims are only
// stored after a successful lookup, so the store rejects upserts that would
// break this.
type UserProfile struct {
	UserID         string    `json:"user_id"`
	FkeyID         string    `json:"fkey_id,omitempty"`
	StealthAddress string    `json:"stealth_address,omitempty"`
	SetupStatus    string    `json:"setup_status"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ProfileStore is eventually-consistent key-value storage for user profiles
// and the interaction side-channel. No transactional guarantees are assumed.
type ProfileStore interface {
	ByUser(ctx context.Context, userID string) (*UserProfile, error)
	ByIdentity(ctx context.Context, fkeyID string) (*UserProfile, error)
	Upsert(ctx context.Context, profile UserProfile) error
	LogInteraction(ctx context.Context, userID, kind, payload string) error

	// Conversation-context mirror for warm restart.
	SaveContext(ctx context.Context, cc ConversationContext) error
	LoadContexts(ctx context.Context) ([]ConversationContext, error)

	Close() error
}
