// Package ingest owns the inbound message stream: initial catch-up sync,
// live subscription, periodic re-sync, and reconnect with bounded backoff.
// Everything it yields has already passed the dedup gate exactly once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veilbot/internal/dedup"
	"veilbot/internal/domain"
)

const (
	defaultResyncInterval = 30 * time.Second
	defaultMaxRetries     = 8
	defaultStableAfter    = 30 * time.Second
)

// Handler processes one deduplicated inbound message. Called sequentially;
// the next message is not pulled until the handler returns.
type Handler func(ctx context.Context, msg domain.InboundMessage)

// Ingestor pulls messages off the transport and feeds them to a Handler.
type Ingestor struct {
	transport   domain.Transport
	window      *dedup.Window
	logger      *slog.Logger
	resyncEver  time.Duration
	maxRetries  int
	stableAfter time.Duration
	backoff     func(int) time.Duration

	knownConvs map[string]struct{}
}

type Config struct {
	Transport      domain.Transport
	Window         *dedup.Window
	Logger         *slog.Logger
	ResyncInterval time.Duration
	MaxRetries     int
	// StableAfter is how long a connection must hold before it counts as
	// healthy again and restores the retry budget.
	StableAfter time.Duration
}

func New(cfg Config) *Ingestor {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = defaultResyncInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = defaultStableAfter
	}
	return &Ingestor{
		transport:   cfg.Transport,
		window:      cfg.Window,
		logger:      cfg.Logger,
		resyncEver:  cfg.ResyncInterval,
		maxRetries:  cfg.MaxRetries,
		stableAfter: cfg.StableAfter,
		backoff:     Backoff,
		knownConvs:  make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled or the stream dies beyond recovery.
// Only transport-level failures are fatal; per-message faults belong to the
// handler.
func (in *Ingestor) Run(ctx context.Context, handle Handler) error {
	if err := in.catchUp(ctx, handle); err != nil {
		in.logger.Warn("initial catch-up incomplete", "err", err)
	}

	resync := time.NewTicker(in.resyncEver)
	defer resync.Stop()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			if attempt > in.maxRetries {
				return fmt.Errorf("stream failed %d consecutive times, giving up", attempt)
			}
			delay := in.backoff(attempt - 1)
			in.logger.Warn("stream down, backing off",
				"attempt", attempt, "backoff", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		stream, err := in.transport.StreamMessages(ctx)
		if err != nil {
			attempt++
			in.logger.Warn("stream construction failed", "attempt", attempt, "err", err)
			continue
		}

		connected := time.Now()
		delivered, err := in.consume(ctx, stream, resync.C, handle)
		stream.Close()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		// A dial alone proves nothing: a flapping relay accepts the socket
		// and resets it right away. The budget is restored only once the
		// connection carried a message or held for the stability window.
		if delivered > 0 || time.Since(connected) >= in.stableAfter {
			attempt = 0
		}
		attempt++
		in.logger.Warn("live stream ended, reconnecting", "err", err)
	}
}

// consume pulls from the live stream until it fails, interleaving periodic
// re-syncs. Re-sync recovery and live delivery funnel through the same dedup
// window, so neither can double-deliver. Returns how many live messages the
// stream carried.
func (in *Ingestor) consume(ctx context.Context, stream domain.MessageStream, resync <-chan time.Time, handle Handler) (int, error) {
	msgs := make(chan *domain.InboundMessage)
	errs := make(chan error, 1)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			msg, err := stream.Next(streamCtx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err := <-errs:
			return delivered, err
		case <-resync:
			if err := in.catchUp(ctx, handle); err != nil {
				in.logger.Warn("periodic re-sync failed", "err", err)
			}
		case msg := <-msgs:
			in.deliver(ctx, msg, handle)
			delivered++
		}
	}
}

// catchUp lists conversations and recovers the most recent foreign message
// of each one the live stream has not covered, e.g. messages sent while the
// agent was offline.
func (in *Ingestor) catchUp(ctx context.Context, handle Handler) error {
	if err := in.transport.SyncAll(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	convs, err := in.transport.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	for _, conv := range convs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, known := in.knownConvs[conv.ID()]; known {
			continue
		}
		in.knownConvs[conv.ID()] = struct{}{}
		in.logger.Info("new conversation discovered", "conversation", conv.ID(), "group", conv.IsGroup())

		msg, err := conv.LastInbound(ctx)
		if err != nil {
			in.logger.Warn("cannot fetch latest message", "conversation", conv.ID(), "err", err)
			continue
		}
		if msg == nil {
			continue
		}
		in.deliver(ctx, msg, handle)
	}
	return nil
}

// deliver applies the ingest-boundary filters and the dedup gate, then hands
// the message to the pipeline. Marking happens here, before any reply work.
func (in *Ingestor) deliver(ctx context.Context, msg *domain.InboundMessage, handle Handler) {
	if msg == nil {
		return
	}
	if msg.ID == "" {
		// Cannot be deduplicated safely.
		in.logger.Debug("dropping message without id", "conversation", msg.ConversationID)
		return
	}
	if msg.Kind != domain.ContentText || strings.TrimSpace(msg.Content) == "" {
		return
	}
	if msg.SenderID == in.transport.Identity() {
		return
	}
	if in.window.Seen(msg.ID) {
		return
	}
	in.window.Mark(msg.ID)
	handle(ctx, *msg)
}
