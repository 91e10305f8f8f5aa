package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veilbot/internal/domain"
)

const (
	defaultHistoryCap = 10
	defaultIdleWindow = 30 * time.Minute
)

// ContextStore is the arena of per user/conversation working state. Owned by
// a pipeline instance, never package-global, so instances can be tested in
// isolation. Entries are created lazily, expire after the idle window, and
// are mirrored write-through into the profile store for warm restart.
type ContextStore struct {
	mu         sync.Mutex
	historyCap int
	idle       time.Duration
	entries    map[string]*domain.ConversationContext
	mirror     domain.ProfileStore
	logger     *slog.Logger
}

func NewContextStore(historyCap int, idle time.Duration, mirror domain.ProfileStore, logger *slog.Logger) *ContextStore {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	if idle <= 0 {
		idle = defaultIdleWindow
	}
	return &ContextStore{
		historyCap: historyCap,
		idle:       idle,
		entries:    make(map[string]*domain.ConversationContext),
		mirror:     mirror,
		logger:     logger,
	}
}

func contextKey(userID, conversationID string) string {
	return userID + "|" + conversationID
}

// Warm loads mirrored contexts from the store. Entries already past the idle
// window are not resurrected.
func (s *ContextStore) Warm(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	ccs, err := s.mirror.LoadContexts(ctx)
	if err != nil {
		s.logger.Warn("cannot warm conversation contexts", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := 0
	for _, cc := range ccs {
		if time.Since(cc.LastActivity) > s.idle {
			continue
		}
		copied := cc
		s.entries[contextKey(cc.UserID, cc.ConversationID)] = &copied
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("warmed conversation contexts", "count", loaded)
	}
}

// Get returns the context for the pair, creating it on first contact.
// Expired entries are swept on access.
func (s *ContextStore) Get(userID, conversationID string) *domain.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	key := contextKey(userID, conversationID)
	if cc, ok := s.entries[key]; ok {
		return cc
	}
	cc := &domain.ConversationContext{
		UserID:         userID,
		ConversationID: conversationID,
		LastActivity:   time.Now(),
		SetupStatus:    "new",
	}
	s.entries[key] = cc
	return cc
}

// Touch records one processed turn pair: the user's message and the agent's
// reply, evicting the oldest history entries past the cap, then mirrors the
// context. Mirror failures are logged, not propagated; the in-memory copy is
// authoritative.
func (s *ContextStore) Touch(ctx context.Context, cc *domain.ConversationContext, userText, agentText, trigger string) {
	s.mu.Lock()
	now := time.Now()
	cc.LastActivity = now
	cc.MessageCount++
	cc.History = append(cc.History,
		domain.HistoryEntry{Timestamp: now, Role: "user", Content: userText, Trigger: trigger},
		domain.HistoryEntry{Timestamp: now, Role: "agent", Content: agentText},
	)
	if over := len(cc.History) - s.historyCap; over > 0 {
		cc.History = append(cc.History[:0], cc.History[over:]...)
	}
	snapshot := *cc
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.SaveContext(ctx, snapshot); err != nil {
			s.logger.Warn("context mirror write failed",
				"user", cc.UserID, "conversation", cc.ConversationID, "err", err)
		}
	}
}

// Len returns the number of live contexts.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

func (s *ContextStore) sweepLocked() {
	cutoff := time.Now().Add(-s.idle)
	for key, cc := range s.entries {
		if cc.LastActivity.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}
