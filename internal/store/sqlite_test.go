package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"veilbot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndByUser(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := domain.UserProfile{
		UserID:         "u1",
		FkeyID:         "tantodefi",
		StealthAddress: "0xABC",
		SetupStatus:    "fkey_set",
		LastUpdated:    time.Now(),
	}
	if err := s.Upsert(ctx, p); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := s.ByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.FkeyID != "tantodefi" || got.StealthAddress != "0xABC" || got.SetupStatus != "fkey_set" {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestUpsert_RejectsIdentityWithoutAddress(t *testing.T) {
	s := testStore(t)
	err := s.Upsert(context.Background(), domain.UserProfile{
		UserID:      "u1",
		FkeyID:      "tantodefi",
		SetupStatus: "fkey_set",
	})
	if !errors.Is(err, ErrIdentityWithoutAddress) {
		t.Fatalf("expected ErrIdentityWithoutAddress, got %v", err)
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.UserProfile{UserID: "u1", SetupStatus: "new"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, domain.UserProfile{
		UserID: "u1", FkeyID: "tantodefi", StealthAddress: "0xABC", SetupStatus: "complete",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SetupStatus != "complete" {
		t.Fatalf("expected complete, got %q", got.SetupStatus)
	}
}

func TestByIdentity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.UserProfile{
		UserID: "u1", FkeyID: "tantodefi", StealthAddress: "0xABC", SetupStatus: "fkey_set",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByIdentity(ctx, "tantodefi")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.UserID != "u1" {
		t.Fatalf("expected u1, got %+v", got)
	}

	missing, err := s.ByIdentity(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown identity, got %+v", missing)
	}
}

func TestByUser_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.ByUser(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestLogInteraction(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.LogInteraction(ctx, "u1", "reply_sent", `{"intent":"payment"}`); err != nil {
		t.Fatalf("log interaction failed: %v", err)
	}
	if err := s.LogInteraction(ctx, "u1", "reply_sent", `{"intent":"setup"}`); err != nil {
		t.Fatalf("second interaction failed (id collision?): %v", err)
	}
}

func TestContextMirrorRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cc := domain.ConversationContext{
		UserID:         "u1",
		ConversationID: "c1",
		LastActivity:   time.Now().UTC().Truncate(time.Second),
		MessageCount:   3,
		SetupStatus:    "fkey_set",
		History: []domain.HistoryEntry{
			{Role: "user", Content: "gm", Trigger: "greeting"},
		},
	}
	if err := s.SaveContext(ctx, cc); err != nil {
		t.Fatalf("save context failed: %v", err)
	}
	// Second save updates in place.
	cc.MessageCount = 4
	if err := s.SaveContext(ctx, cc); err != nil {
		t.Fatalf("update context failed: %v", err)
	}

	loaded, err := s.LoadContexts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 context, got %d", len(loaded))
	}
	if loaded[0].MessageCount != 4 || len(loaded[0].History) != 1 {
		t.Fatalf("unexpected context: %+v", loaded[0])
	}
}
