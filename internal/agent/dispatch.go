package agent

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"veilbot/internal/domain"
)

// dispatchFallback is sent once when the real reply fails to deliver.
const dispatchFallback = "Sorry, something went wrong on my end. Please try again."

// Dispatcher sends composed replies back on the originating conversation.
// Outbound sends are rate limited to avoid reply storms.
type Dispatcher struct {
	transport domain.Transport
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewDispatcher(transport domain.Transport, perMinute int, logger *slog.Logger) *Dispatcher {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Dispatcher{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 5),
		logger:    logger,
	}
}

// Dispatch resolves the conversation and sends reply. Resolution failure is
// retried once after a fresh sync, then dropped (logged, not fatal). Send
// failure triggers exactly one fallback send; never more.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID, reply string) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}

	conv, err := d.resolve(ctx, conversationID)
	if err != nil {
		d.logger.Error("cannot resolve conversation, dropping reply",
			"conversation", conversationID, "err", err)
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	if err := conv.Send(ctx, reply); err != nil {
		d.logger.Error("send failed, attempting fallback", "conversation", conversationID, "err", err)
		if err := conv.Send(ctx, dispatchFallback); err != nil {
			d.logger.Error("fallback send failed, giving up", "conversation", conversationID, "err", err)
		}
	}
}

func (d *Dispatcher) resolve(ctx context.Context, conversationID string) (domain.Conversation, error) {
	conv, err := d.transport.ConversationByID(ctx, conversationID)
	if err == nil {
		return conv, nil
	}
	// One fresh sync catches conversations created since the last list.
	if syncErr := d.transport.SyncAll(ctx); syncErr != nil {
		return nil, err
	}
	return d.transport.ConversationByID(ctx, conversationID)
}
