// Package transport implements domain.Transport against a local relay node
// for the encrypted messaging network. The relay exposes conversation CRUD
// over HTTP and a websocket firehose of decrypted inbound messages; only the
// fields the agent consumes are modeled.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"veilbot/internal/domain"
)

const relayHTTPTimeout = 30 * time.Second

// Relay talks to a relay node.
type Relay struct {
	baseURL string
	wsURL   string
	inboxID string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	BaseURL string // e.g. http://127.0.0.1:7656
	InboxID string // the agent's own inbox id
	Logger  *slog.Logger
}

func New(cfg Config) (*Relay, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("relay base URL is required")
	}
	if cfg.InboxID == "" {
		return nil, fmt.Errorf("relay inbox id is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	ws := strings.Replace(base, "http", "ws", 1)
	return &Relay{
		baseURL: base,
		wsURL:   ws + "/v1/stream",
		inboxID: cfg.InboxID,
		client:  &http.Client{Timeout: relayHTTPTimeout},
		logger:  cfg.Logger,
	}, nil
}

func (r *Relay) Identity() string { return r.inboxID }

func (r *Relay) SyncAll(ctx context.Context) error {
	return r.post(ctx, "/v1/sync", nil)
}

// conversationRecord is the relay's wire shape for a conversation.
type conversationRecord struct {
	ID      string `json:"id"`
	Group   bool   `json:"group"`
	Members int    `json:"members"`
}

// messageFrame is the relay's wire shape for a message.
type messageFrame struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Kind           string `json:"kind"`
	SentAt         int64  `json:"sent_at"` // unix millis
}

func (f messageFrame) toDomain() *domain.InboundMessage {
	kind := domain.ContentKind(f.Kind)
	if f.Kind == "" {
		kind = domain.ContentText
	}
	return &domain.InboundMessage{
		ID:             f.ID,
		ConversationID: f.ConversationID,
		SenderID:       f.SenderID,
		Content:        f.Content,
		Kind:           kind,
		SentAt:         time.UnixMilli(f.SentAt),
	}
}

func (r *Relay) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var records []conversationRecord
	if err := r.getJSON(ctx, "/v1/conversations", &records); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, len(records))
	for i, rec := range records {
		out[i] = &conversation{relay: r, rec: rec}
	}
	return out, nil
}

func (r *Relay) ConversationByID(ctx context.Context, id string) (domain.Conversation, error) {
	var rec conversationRecord
	if err := r.getJSON(ctx, "/v1/conversations/"+id, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return &conversation{relay: r, rec: rec}, nil
}

// StreamMessages dials the relay firehose.
func (r *Relay) StreamMessages(ctx context.Context) (domain.MessageStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay stream: %w", err)
	}
	r.logger.Info("relay stream connected", "url", r.wsURL)
	return &wsStream{conn: conn}, nil
}

// conversation implements domain.Conversation over the relay API.
type conversation struct {
	relay *Relay
	rec   conversationRecord
}

func (c *conversation) ID() string       { return c.rec.ID }
func (c *conversation) IsGroup() bool    { return c.rec.Group || c.rec.Members > 2 }
func (c *conversation) MemberCount() int { return c.rec.Members }

func (c *conversation) Sync(ctx context.Context) error {
	return c.relay.post(ctx, "/v1/conversations/"+c.rec.ID+"/sync", nil)
}

func (c *conversation) LastInbound(ctx context.Context) (*domain.InboundMessage, error) {
	var frames []messageFrame
	if err := c.relay.getJSON(ctx, "/v1/conversations/"+c.rec.ID+"/messages?limit=10&order=desc", &frames); err != nil {
		return nil, err
	}
	for _, f := range frames {
		if f.SenderID == c.relay.inboxID {
			continue
		}
		return f.toDomain(), nil
	}
	return nil, nil
}

func (c *conversation) Send(ctx context.Context, text string) error {
	payload := map[string]string{"content": text, "kind": string(domain.ContentText)}
	return c.relay.post(ctx, "/v1/conversations/"+c.rec.ID+"/messages", payload)
}

// wsStream adapts a websocket connection to domain.MessageStream.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next(ctx context.Context) (*domain.InboundMessage, error) {
	// ReadMessage has no context; honor cancellation via deadline nudges.
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if netTimeout(err) {
				continue
			}
			return nil, fmt.Errorf("relay stream read: %w", err)
		}
		var f messageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			// Malformed frame: skip rather than kill the stream.
			continue
		}
		return f.toDomain(), nil
	}
}

func (s *wsStream) Close() error { return s.conn.Close() }

func netTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}

func (r *Relay) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay GET %s: %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (r *Relay) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay POST %s: %d: %s", path, resp.StatusCode, string(b))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
