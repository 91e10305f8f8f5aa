package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"veilbot/internal/domain"
)

func TestContextStore_HistoryCapped(t *testing.T) {
	s := NewContextStore(4, time.Hour, nil, testLogger())
	cc := s.Get("u1", "c1")

	for i := 0; i < 10; i++ {
		s.Touch(context.Background(), cc, fmt.Sprintf("msg %d", i), "reply", "")
	}

	if len(cc.History) != 4 {
		t.Fatalf("history must be capped at 4, got %d", len(cc.History))
	}
	// The most recent turn survives eviction.
	last := cc.History[len(cc.History)-2]
	if last.Content != "msg 9" {
		t.Fatalf("newest entries must be kept, got %q", last.Content)
	}
	if cc.MessageCount != 10 {
		t.Fatalf("message count tracks all turns, got %d", cc.MessageCount)
	}
}

func TestContextStore_IdleEviction(t *testing.T) {
	s := NewContextStore(10, 50*time.Millisecond, nil, testLogger())
	cc := s.Get("u1", "c1")
	s.Touch(context.Background(), cc, "hello", "hi", "")

	if s.Len() != 1 {
		t.Fatalf("expected 1 live context, got %d", s.Len())
	}

	time.Sleep(80 * time.Millisecond)

	if s.Len() != 0 {
		t.Fatalf("idle context must be swept, got %d", s.Len())
	}
	fresh := s.Get("u1", "c1")
	if len(fresh.History) != 0 {
		t.Fatal("re-created context must start empty")
	}
}

func TestContextStore_MirrorWriteThrough(t *testing.T) {
	profiles := newFakeProfiles()
	s := NewContextStore(10, time.Hour, profiles, testLogger())
	cc := s.Get("u1", "c1")

	s.Touch(context.Background(), cc, "hello", "hi", "greeting")

	if len(profiles.contexts) != 1 {
		t.Fatalf("every touch mirrors the context, got %d writes", len(profiles.contexts))
	}
	got := profiles.contexts[0]
	if got.UserID != "u1" || got.ConversationID != "c1" || len(got.History) != 2 {
		t.Fatalf("mirrored snapshot incomplete: %+v", got)
	}
}

func TestContextStore_WarmSkipsExpired(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.SaveContext(context.Background(), domain.ConversationContext{
		UserID: "fresh", ConversationID: "c1", LastActivity: time.Now(),
	})
	profiles.SaveContext(context.Background(), domain.ConversationContext{
		UserID: "stale", ConversationID: "c2", LastActivity: time.Now().Add(-2 * time.Hour),
	})

	s := NewContextStore(10, 30*time.Minute, profiles, testLogger())
	s.Warm(context.Background())

	if s.Len() != 1 {
		t.Fatalf("only unexpired contexts warm, got %d", s.Len())
	}
	if cc := s.Get("fresh", "c1"); cc.LastActivity.IsZero() {
		t.Fatal("warmed context must carry its stored activity time")
	}
}

func TestContextStore_PairsAreIsolated(t *testing.T) {
	s := NewContextStore(10, time.Hour, nil, testLogger())
	a := s.Get("u1", "c1")
	b := s.Get("u1", "c2")
	c := s.Get("u2", "c1")

	s.Touch(context.Background(), a, "only a", "r", "")

	if len(b.History) != 0 || len(c.History) != 0 {
		t.Fatal("contexts are keyed per user and conversation pair")
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 distinct contexts, got %d", s.Len())
	}
}
