// Package provider implements the AI completion collaborator against any
// OpenAI-compatible chat completion endpoint.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultMaxTokens   = 300
	// Replies ride a chat transport; anything longer gets truncated.
	maxReplyChars = 900
)

// OpenAI is a completion client for OpenAI-compatible APIs.
type OpenAI struct {
	apiKey    string
	apiBase   string
	model     string
	maxTokens int
	client    *http.Client
	logger    *slog.Logger
}

type OpenAIConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &OpenAI{
		apiKey:    cfg.APIKey,
		apiBase:   cfg.APIBase,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:    cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Healthy probes the API with the configured key.
func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("completion API not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("completion API: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completion API returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the answer text,
// truncated to the reply cap. An empty string with nil error means the model
// had nothing usable; callers fall back to structured replies.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	body := oaiRequest{
		Model: o.model,
		Messages: []oaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		MaxTokens: o.maxTokens,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	resp, err := doWithRetry(ctx, o.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		return req, nil
	}, o.logger)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned %d", resp.StatusCode)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return "", nil
	}

	answer := strings.TrimSpace(oaiResp.Choices[0].Message.Content)
	if len(answer) > maxReplyChars {
		cut := strings.LastIndex(answer[:maxReplyChars], " ")
		if cut < maxReplyChars/2 {
			cut = maxReplyChars
		}
		answer = answer[:cut]
	}
	return answer, nil
}
