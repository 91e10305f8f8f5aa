package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"veilbot/internal/classify"
	"veilbot/internal/collab"
	"veilbot/internal/domain"
	"veilbot/internal/onboard"
)

// FallbackReply is the guaranteed non-empty answer of last resort. Reaching
// it indicates a logic gap, so the responder logs every time it is used.
const FallbackReply = "I'm not sure how to help with that. Try /help to see what I can do."

const aiSystemPrompt = "You are veilbot, an assistant for private payments. " +
	"You help people claim an fkey identity, receive funds at a stealth address, " +
	"and create payment links. Only answer questions about identity, privacy, " +
	"and payments. Keep answers under three sentences."

// Responder composes the reply for a classified message. It is a pure
// function of its inputs plus collaborator results; every branch ends in
// non-empty text.
type Responder struct {
	lookup   domain.IdentityLookup
	balances domain.BalanceService
	payments domain.PaymentLinks
	profiles domain.ProfileStore
	ai       domain.Completer
	logger   *slog.Logger
}

type ResponderConfig struct {
	Lookup   domain.IdentityLookup
	Balances domain.BalanceService
	Payments domain.PaymentLinks
	Profiles domain.ProfileStore
	AI       domain.Completer
	Logger   *slog.Logger
}

func NewResponder(cfg ResponderConfig) *Responder {
	return &Responder{
		lookup:   cfg.Lookup,
		balances: cfg.Balances,
		payments: cfg.Payments,
		profiles: cfg.Profiles,
		ai:       cfg.AI,
		logger:   cfg.Logger,
	}
}

// Request carries everything a reply depends on.
type Request struct {
	Msg     domain.InboundMessage
	Result  classify.Result
	Context *domain.ConversationContext
	Profile *domain.UserProfile
	IsGroup bool
}

// Respond returns the reply text. Never empty.
func (r *Responder) Respond(ctx context.Context, req Request) string {
	text := strings.TrimSpace(req.Msg.Content)

	if cmd := ParseCommand(text); cmd != nil {
		if reply := r.handleCommand(ctx, cmd, req); reply != "" {
			return reply
		}
	}

	var reply string
	switch req.Result.Primary {
	case classify.CategoryIdentity:
		reply = r.handleIdentityClaim(ctx, text, req)
	case classify.CategoryPayment:
		reply = r.handlePayment(ctx, text, req)
	case classify.CategorySetup:
		reply = r.setupInstructions(req)
	case classify.CategoryStealth:
		reply = r.stealthInfo(req)
	case classify.CategoryGreeting:
		reply = r.greeting(req)
	}

	if reply == "" && req.Result.RequiresAI {
		reply = r.askAI(ctx, text)
	}
	if reply == "" {
		r.logger.Warn("no handler produced a reply, using fallback",
			"user", req.Msg.SenderID, "primary", req.Result.Primary, "intent", req.Result.Intent)
		reply = FallbackReply
	}
	return reply
}

// handleIdentityClaim resolves a bare fkey handle. A claim already known to
// the profile store short-circuits the network lookup.
func (r *Responder) handleIdentityClaim(ctx context.Context, text string, req Request) string {
	claim := collab.NormalizeClaim(text)
	if claim == "" {
		return ""
	}

	// Cache hit: someone (possibly this user) already verified this claim.
	if cached, err := r.profiles.ByIdentity(ctx, claim); err == nil && cached != nil && cached.StealthAddress != "" {
		r.adoptIdentity(ctx, req, claim, cached.StealthAddress)
		return r.identityReply(req, claim, cached.StealthAddress)
	}

	res, err := r.lookup.Lookup(ctx, claim)
	if err != nil || !res.Success {
		detail := res.Err
		if detail == "" {
			detail = "lookup failed"
		}
		r.logger.Info("identity lookup failed", "claim", claim, "detail", detail, "err", err)
		return fmt.Sprintf("I couldn't find `%s` on fkey.id (%s). "+
			"Double-check the spelling, or create one at https://app.fkey.id first.", claim, detail)
	}

	r.adoptIdentity(ctx, req, claim, res.Address)
	return r.identityReply(req, claim, res.Address)
}

// adoptIdentity records a verified claim on the sender's profile. The reply
// sends the user to the mini-app registration step, so the profile advances
// there in the same breath.
func (r *Responder) adoptIdentity(ctx context.Context, req Request, claim, address string) {
	out := onboard.ClaimIdentity(req.Profile, claim, address)
	if !out.Changed {
		return
	}
	onboard.MarkMiniappPending(req.Profile)
	if err := r.profiles.Upsert(ctx, *req.Profile); err != nil {
		r.logger.Warn("cannot persist identity claim", "user", req.Profile.UserID, "err", err)
	}
}

func (r *Responder) identityReply(req Request, claim, address string) string {
	if req.IsGroup {
		return fmt.Sprintf("Verified %s.fkey.id → %s. DM me to finish setup!", claim, address)
	}
	return fmt.Sprintf("Found it! `%s.fkey.id` resolves to your stealth address:\n%s\n\n"+
		"Next step: register in the mini-app, then tell me `/setup complete` to unlock payments.",
		claim, address)
}

// handlePayment creates a payment link when the user is fully set up.
func (r *Responder) handlePayment(ctx context.Context, text string, req Request) string {
	if allowed, nudge := onboard.Gate(req.Profile, onboard.FeaturePaymentLinks); !allowed {
		return nudge
	}

	amount := classify.ExtractAmount(text)
	if amount == "" {
		return "How much should the link request? Say something like: create payment link for $10"
	}
	// Pass the user's amount through untouched; the collaborator owns parsing.
	amount = strings.TrimPrefix(amount, "$")

	url, err := r.payments.CreateLink(ctx, amount, req.Profile.StealthAddress, map[string]string{
		"fkey": req.Profile.FkeyID,
	})
	if err != nil {
		r.logger.Warn("payment link creation failed", "user", req.Profile.UserID, "err", err)
		return "The payment service isn't responding right now. Try again in a minute."
	}

	if req.IsGroup {
		return fmt.Sprintf("Payment link: %s", url)
	}
	return fmt.Sprintf("Here's your payment link for %s:\n%s\n\nFunds arrive at your stealth address.", amount, url)
}

func (r *Responder) setupInstructions(req Request) string {
	if req.IsGroup {
		return "I can set you up with private payments — DM me and say `setup` to get started."
	}
	return "Let's get you set up:\n" +
		"1. Claim an fkey identity at https://app.fkey.id\n" +
		"2. Send me your username (like `tantodefi`) and I'll verify it\n" +
		"3. Register in the mini-app, then say `/setup complete`\n\n" +
		"After that you can create payment links and check your balance here."
}

func (r *Responder) stealthInfo(req Request) string {
	if req.IsGroup {
		return "Stealth addresses keep your payments private. DM me to learn more!"
	}
	return "A stealth address is a receiving address that isn't linkable to your public identity. " +
		"Every payment you receive lands at a fresh address only you control.\n\n" +
		"Use `/scan <address>` to check any address, or send me your fkey username to claim yours."
}

func (r *Responder) greeting(req Request) string {
	if req.IsGroup {
		return "Hey! I'm veilbot — I do private payment links. DM me to get started."
	}
	state := onboard.ParseState(req.Profile.SetupStatus)
	if state == onboard.StateComplete {
		return "Hey! Want a payment link, or your balance? Just ask — or type /help."
	}
	return "Hey! I'm veilbot. I help you receive private payments via a stealth address.\n" +
		"Send me your fkey username to get started, or type /help."
}

// askAI delegates open-ended questions to the completion collaborator.
// Failures and empty answers fall back to structured text, never to an
// upstream error surfaced at the user.
func (r *Responder) askAI(ctx context.Context, text string) string {
	if r.ai == nil {
		return ""
	}
	answer, err := r.ai.Complete(ctx, aiSystemPrompt, text)
	if err != nil {
		r.logger.Warn("AI completion failed", "err", err)
		return ""
	}
	return strings.TrimSpace(answer)
}
