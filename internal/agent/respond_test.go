package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"veilbot/internal/classify"
	"veilbot/internal/domain"
	"veilbot/internal/onboard"
)

type respondFixture struct {
	lookup   *fakeLookup
	balances *fakeBalances
	payments *fakePayments
	profiles *fakeProfiles
	ai       *fakeAI
	r        *Responder
}

func newRespondFixture() *respondFixture {
	f := &respondFixture{
		lookup:   &fakeLookup{},
		balances: &fakeBalances{balance: "10 USDC"},
		payments: &fakePayments{url: "https://pay.example/xyz"},
		profiles: newFakeProfiles(),
		ai:       &fakeAI{},
	}
	f.r = NewResponder(ResponderConfig{
		Lookup:   f.lookup,
		Balances: f.balances,
		Payments: f.payments,
		Profiles: f.profiles,
		AI:       f.ai,
		Logger:   testLogger(),
	})
	return f
}

func request(text string, profile *domain.UserProfile, isGroup bool) Request {
	ic := classify.NewIntentClassifier()
	return Request{
		Msg:     domain.InboundMessage{ID: "m1", ConversationID: "c1", SenderID: profile.UserID, Content: text, Kind: domain.ContentText, SentAt: time.Now()},
		Result:  ic.Classify(text, 0),
		Context: &domain.ConversationContext{UserID: profile.UserID, ConversationID: "c1"},
		Profile: profile,
		IsGroup: isGroup,
	}
}

func newUser(id string) *domain.UserProfile {
	return &domain.UserProfile{UserID: id, SetupStatus: onboard.StateNew.String(), LastUpdated: time.Now()}
}

func completeUser(id string) *domain.UserProfile {
	return &domain.UserProfile{
		UserID: id, FkeyID: "tantodefi", StealthAddress: "0xABC123",
		SetupStatus: onboard.StateComplete.String(), LastUpdated: time.Now(),
	}
}

func TestRespond_IdentityClaimSuccess(t *testing.T) {
	f := newRespondFixture()
	f.lookup.result = domain.LookupResult{Success: true, Address: "0xABC123", Registered: true}

	p := newUser("u1")
	reply := f.r.Respond(context.Background(), request("tantodefi", p, false))

	if !strings.Contains(reply, "0xABC123") {
		t.Fatalf("reply must contain the resolved address: %q", reply)
	}
	if !strings.Contains(reply, "tantodefi") {
		t.Fatalf("reply must contain the identity claim: %q", reply)
	}
	if p.FkeyID != "tantodefi" {
		t.Fatalf("profile fkey not set: %+v", p)
	}
	if p.SetupStatus != onboard.StateMiniappPending.String() {
		t.Fatalf("verified claim must advance to the mini-app step, got %q", p.SetupStatus)
	}
	stored, _ := f.profiles.ByUser(context.Background(), "u1")
	if stored == nil || stored.FkeyID != "tantodefi" {
		t.Fatalf("profile not persisted: %+v", stored)
	}
}

func TestRespond_IdentityClaimNotFound(t *testing.T) {
	f := newRespondFixture()
	f.lookup.result = domain.LookupResult{Success: false, Err: "identity not found"}

	p := newUser("u1")
	reply := f.r.Respond(context.Background(), request("nobodyhere", p, false))

	if !strings.Contains(reply, "nobodyhere") {
		t.Fatalf("reply must name the claim: %q", reply)
	}
	if p.FkeyID != "" {
		t.Fatal("failed lookup must not store an identity")
	}
}

func TestRespond_FkeyCacheHitSkipsLookup(t *testing.T) {
	f := newRespondFixture()
	// Identity already verified and stored.
	f.profiles.Upsert(context.Background(), domain.UserProfile{
		UserID: "earlier", FkeyID: "tantodefi", StealthAddress: "0xCACHED",
		SetupStatus: onboard.StateFkeySet.String(),
	})

	p := newUser("u2")
	reply := f.r.Respond(context.Background(), request("/fkey tantodefi.fkey.id", p, false))

	if f.lookup.calls != 0 {
		t.Fatalf("cached identity must not invoke the network lookup, got %d calls", f.lookup.calls)
	}
	if !strings.Contains(reply, "0xCACHED") {
		t.Fatalf("reply must carry the cached address: %q", reply)
	}
}

func TestRespond_PaymentLinkForCompleteUser(t *testing.T) {
	f := newRespondFixture()
	p := completeUser("u1")

	reply := f.r.Respond(context.Background(), request("create payment link for $12.50", p, false))

	if !strings.Contains(reply, "https://pay.example/xyz") {
		t.Fatalf("reply must contain the collaborator link: %q", reply)
	}
	if f.payments.lastAmount != "12.50" {
		t.Fatalf("amount must pass through untouched, got %q", f.payments.lastAmount)
	}
	if f.payments.lastTo != "0xABC123" {
		t.Fatalf("link must target the stored stealth address, got %q", f.payments.lastTo)
	}
}

func TestRespond_GatedFeaturesNeverInvokeCollaborators(t *testing.T) {
	f := newRespondFixture()
	p := newUser("u1")
	ctx := context.Background()

	for _, text := range []string{
		"create payment link for $5",
		"/balance",
		"/links",
		"/create a|b|5|USDC",
	} {
		reply := f.r.Respond(ctx, request(text, p, false))
		if !strings.Contains(reply, "setup") && !strings.Contains(reply, "Setup") {
			t.Fatalf("%q: expected the setup nudge, got %q", text, reply)
		}
	}
	if f.payments.calls != 0 {
		t.Fatalf("payment collaborator invoked %d times for gated user", f.payments.calls)
	}
	if f.balances.calls != 0 {
		t.Fatalf("balance collaborator invoked %d times for gated user", f.balances.calls)
	}
}

func TestRespond_ScanAvailablePreComplete(t *testing.T) {
	f := newRespondFixture()
	reply := f.r.Respond(context.Background(), request("/scan 0xSOMEWHERE", newUser("u1"), false))
	if f.balances.calls != 1 {
		t.Fatal("scan should reach the balance service regardless of setup state")
	}
	if !strings.Contains(reply, "10 USDC") {
		t.Fatalf("scan reply missing balance: %q", reply)
	}
}

func TestRespond_SetupCompleteRequiresIdentity(t *testing.T) {
	f := newRespondFixture()
	p := newUser("u1")
	reply := f.r.Respond(context.Background(), request("/setup complete", p, false))
	if p.SetupStatus != onboard.StateNew.String() {
		t.Fatalf("state must not change, got %q", p.SetupStatus)
	}
	if reply == "" {
		t.Fatal("rejection must carry an explanation")
	}
}

func TestRespond_SetupCompleteWithIdentity(t *testing.T) {
	f := newRespondFixture()
	p := &domain.UserProfile{
		UserID: "u1", FkeyID: "tantodefi", StealthAddress: "0xABC",
		SetupStatus: onboard.StateFkeySet.String(),
	}
	f.r.Respond(context.Background(), request("/setup complete", p, false))
	if p.SetupStatus != onboard.StateComplete.String() {
		t.Fatalf("expected complete, got %q", p.SetupStatus)
	}
	stored, _ := f.profiles.ByUser(context.Background(), "u1")
	if stored == nil || stored.SetupStatus != onboard.StateComplete.String() {
		t.Fatal("completion must be persisted")
	}
}

func TestRespond_AIFailureFallsBack(t *testing.T) {
	f := newRespondFixture()
	f.ai.answer = ""

	reply := f.r.Respond(context.Background(), request("tell me about the history of banking and why it matters", newUser("u1"), false))
	if strings.TrimSpace(reply) == "" {
		t.Fatal("reply must never be empty")
	}
	if reply != FallbackReply {
		t.Fatalf("empty AI answer must fall back, got %q", reply)
	}
}

func TestRespond_AIAnswerUsed(t *testing.T) {
	f := newRespondFixture()
	f.ai.answer = "Stealth addresses decouple identity from receipt."

	reply := f.r.Respond(context.Background(), request("why would anyone ever want this kind of thing at all", newUser("u1"), false))
	if reply != f.ai.answer {
		t.Fatalf("expected AI answer, got %q", reply)
	}
}

func TestRespond_CreateCommandIgnoresCase(t *testing.T) {
	f := newRespondFixture()
	p := completeUser("u1")

	reply := f.r.Respond(context.Background(), request("/Create Guide|A setup guide|5|USDC", p, false))

	if f.payments.calls != 1 {
		t.Fatalf("expected one link creation, got %d", f.payments.calls)
	}
	if f.payments.lastMeta["title"] != "Guide" {
		t.Fatalf("mixed-case command must not mangle the title, got %q", f.payments.lastMeta["title"])
	}
	if f.payments.lastAmount != "5" {
		t.Fatalf("price not extracted, got %q", f.payments.lastAmount)
	}
	if !strings.Contains(reply, "Guide") {
		t.Fatalf("reply must name the content: %q", reply)
	}
}

func TestRespond_UnknownCommand(t *testing.T) {
	f := newRespondFixture()
	reply := f.r.Respond(context.Background(), request("/frobnicate now", newUser("u1"), false))
	if !strings.Contains(reply, "/frobnicate") {
		t.Fatalf("unknown command reply must name the input: %q", reply)
	}
	if !strings.Contains(reply, "/help") {
		t.Fatalf("unknown command reply must suggest /help: %q", reply)
	}
}

func TestRespond_GroupRepliesAreShort(t *testing.T) {
	f := newRespondFixture()
	p := newUser("u1")

	short := f.r.Respond(context.Background(), request("hey veilbot, how do I set up?", p, true))
	long := f.r.Respond(context.Background(), request("how do I set up?", p, false))

	if len(short) >= len(long) {
		t.Fatalf("group reply must be shorter than DM reply\ngroup: %q\ndm: %q", short, long)
	}
	if strings.Contains(short, "1.") {
		t.Fatalf("group reply must not carry the full onboarding steps: %q", short)
	}
}

func TestRespond_NeverEmpty(t *testing.T) {
	f := newRespondFixture()
	for _, text := range []string{"gm", "???", "/help", "xyz", "   hm   "} {
		reply := f.r.Respond(context.Background(), request(text, newUser("u1"), false))
		if strings.TrimSpace(reply) == "" {
			t.Fatalf("%q produced an empty reply", text)
		}
	}
}
