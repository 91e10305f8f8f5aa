package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"veilbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- transport ---

type fakeConversation struct {
	id      string
	group   bool
	sent    []string
	sendErr error
}

func (f *fakeConversation) ID() string                     { return f.id }
func (f *fakeConversation) IsGroup() bool                  { return f.group }
func (f *fakeConversation) MemberCount() int               { return 2 }
func (f *fakeConversation) Sync(ctx context.Context) error { return nil }
func (f *fakeConversation) LastInbound(ctx context.Context) (*domain.InboundMessage, error) {
	return nil, nil
}
func (f *fakeConversation) Send(ctx context.Context, text string) error {
	f.sent = append(f.sent, text)
	return f.sendErr
}

type fakeTransport struct {
	convs map[string]*fakeConversation
	syncs int
}

func (f *fakeTransport) Identity() string                  { return "agent" }
func (f *fakeTransport) SyncAll(ctx context.Context) error { f.syncs++; return nil }
func (f *fakeTransport) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, c := range f.convs {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeTransport) ConversationByID(ctx context.Context, id string) (domain.Conversation, error) {
	if c, ok := f.convs[id]; ok {
		return c, nil
	}
	return nil, errors.New("conversation not found")
}
func (f *fakeTransport) StreamMessages(ctx context.Context) (domain.MessageStream, error) {
	return nil, errors.New("not implemented")
}

// --- profile store ---

type fakeProfiles struct {
	mu           sync.Mutex
	byUser       map[string]*domain.UserProfile
	interactions []string
	contexts     []domain.ConversationContext
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byUser: make(map[string]*domain.UserProfile)}
}

func (f *fakeProfiles) ByUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byUser[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeProfiles) ByIdentity(ctx context.Context, fkeyID string) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byUser {
		if p.FkeyID == fkeyID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) Upsert(ctx context.Context, profile domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := profile
	f.byUser[profile.UserID] = &cp
	return nil
}

func (f *fakeProfiles) LogInteraction(ctx context.Context, userID, kind, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, kind)
	return nil
}

func (f *fakeProfiles) SaveContext(ctx context.Context, cc domain.ConversationContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, cc)
	return nil
}

func (f *fakeProfiles) LoadContexts(ctx context.Context) ([]domain.ConversationContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts, nil
}

func (f *fakeProfiles) Close() error { return nil }

// --- collaborators ---

type fakeLookup struct {
	calls  int
	result domain.LookupResult
	err    error
}

func (f *fakeLookup) Lookup(ctx context.Context, claim string) (domain.LookupResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeBalances struct {
	calls   int
	balance string
	err     error
}

func (f *fakeBalances) Balance(ctx context.Context, address string) (string, error) {
	f.calls++
	return f.balance, f.err
}

type fakePayments struct {
	calls      int
	lastAmount string
	lastTo     string
	lastMeta   map[string]string
	url        string
	err        error
}

func (f *fakePayments) CreateLink(ctx context.Context, amount, recipient string, metadata map[string]string) (string, error) {
	f.calls++
	f.lastAmount = amount
	f.lastTo = recipient
	f.lastMeta = metadata
	return f.url, f.err
}

type fakeAI struct {
	calls  int
	answer string
	err    error
}

func (f *fakeAI) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	f.calls++
	return f.answer, f.err
}
