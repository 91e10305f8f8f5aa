// Package agent wires the message pipeline: context gate, intent
// classification, onboarding state, response generation, and dispatch.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"veilbot/internal/classify"
	"veilbot/internal/domain"
	"veilbot/internal/onboard"
)

// Pipeline processes one inbound message end to end. Messages are handled
// strictly sequentially; per-conversation state mutations are race-free by
// construction.
type Pipeline struct {
	transport domain.Transport
	profiles  domain.ProfileStore
	contexts  *ContextStore
	gate      *classify.ContextClassifier
	intents   *classify.IntentClassifier
	responder *Responder
	dispatch  *Dispatcher
	logger    *slog.Logger
}

type PipelineConfig struct {
	Transport  domain.Transport
	Profiles   domain.ProfileStore
	Contexts   *ContextStore
	Gate       *classify.ContextClassifier
	Intents    *classify.IntentClassifier
	Responder  *Responder
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		transport: cfg.Transport,
		profiles:  cfg.Profiles,
		contexts:  cfg.Contexts,
		gate:      cfg.Gate,
		intents:   cfg.Intents,
		responder: cfg.Responder,
		dispatch:  cfg.Dispatcher,
		logger:    cfg.Logger,
	}
}

// Handle is the per-message fault boundary: nothing below it may crash the
// ingestion loop.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("panic while processing message",
				"message", msg.ID, "conversation", msg.ConversationID, "panic", rec)
			p.dispatch.Dispatch(ctx, msg.ConversationID, FallbackReply)
		}
	}()

	start := time.Now()

	conv, err := p.transport.ConversationByID(ctx, msg.ConversationID)
	if err != nil {
		// One retry after a fresh sync; newly created conversations may not
		// be in the local list yet.
		if syncErr := p.transport.SyncAll(ctx); syncErr == nil {
			conv, err = p.transport.ConversationByID(ctx, msg.ConversationID)
		}
		if err != nil {
			p.logger.Warn("cannot resolve conversation, dropping message",
				"message", msg.ID, "conversation", msg.ConversationID, "err", err)
			return
		}
	}

	decision := p.gate.Decide(msg.Content, conv.IsGroup())
	if !decision.ShouldReply {
		p.logger.Debug("group message suppressed",
			"message", msg.ID, "conversation", msg.ConversationID)
		return
	}

	profile := p.loadProfile(ctx, msg.SenderID)
	cc := p.contexts.Get(msg.SenderID, msg.ConversationID)
	result := p.intents.Classify(msg.Content, len(cc.History))

	reply := p.responder.Respond(ctx, Request{
		Msg:     msg,
		Result:  result,
		Context: cc,
		Profile: profile,
		IsGroup: decision.IsGroup,
	})

	cc.SetupStatus = profile.SetupStatus
	p.contexts.Touch(ctx, cc, msg.Content, reply, result.Primary)
	p.dispatch.Dispatch(ctx, msg.ConversationID, reply)

	// Interaction side-channel, emitted after the reply so business logic
	// stays testable without it.
	p.logInteraction(ctx, msg, result, time.Since(start))
}

func (p *Pipeline) loadProfile(ctx context.Context, userID string) *domain.UserProfile {
	profile, err := p.profiles.ByUser(ctx, userID)
	if err != nil {
		p.logger.Warn("profile read failed, using transient profile", "user", userID, "err", err)
	}
	if profile == nil {
		profile = &domain.UserProfile{
			UserID:      userID,
			SetupStatus: onboard.StateNew.String(),
			LastUpdated: time.Now(),
		}
	}
	return profile
}

func (p *Pipeline) logInteraction(ctx context.Context, msg domain.InboundMessage, result classify.Result, elapsed time.Duration) {
	payload, _ := json.Marshal(map[string]any{
		"conversation": msg.ConversationID,
		"primary":      result.Primary,
		"intent":       result.Intent,
		"triggers":     result.Matched,
		"elapsed_ms":   elapsed.Milliseconds(),
	})
	if err := p.profiles.LogInteraction(ctx, msg.SenderID, "reply_sent", string(payload)); err != nil {
		p.logger.Warn("interaction log write failed", "user", msg.SenderID, "err", err)
	}
}
