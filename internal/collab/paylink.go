package collab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PayClient creates hosted payment links.
type PayClient struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

type PayConfig struct {
	APIBase string
	Logger  *slog.Logger
}

func NewPayClient(cfg PayConfig) *PayClient {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://app.daimo.com/api"
	}
	return &PayClient{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

// CreateLink requests a payment link for amount to recipient. The upstream
// contract rejects null-valued metadata fields, so empty values are excluded
// from the request body rather than sent as null.
func (p *PayClient) CreateLink(ctx context.Context, amount, recipient string, metadata map[string]string) (string, error) {
	if amount == "" || recipient == "" {
		return "", fmt.Errorf("amount and recipient are required")
	}

	body := `{}`
	var err error
	if body, err = sjson.Set(body, "amount", amount); err != nil {
		return "", err
	}
	if body, err = sjson.Set(body, "recipient", recipient); err != nil {
		return "", err
	}
	for k, v := range metadata {
		if v == "" {
			continue
		}
		if body, err = sjson.Set(body, "metadata."+k, v); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/links", bytes.NewReader([]byte(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment link request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read payment link response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.logger.Warn("payment link creation failed",
			"status", resp.StatusCode, "latency", time.Since(start))
		return "", fmt.Errorf("payment link service returned %d", resp.StatusCode)
	}

	url := gjson.GetBytes(respBody, "url").String()
	if url == "" {
		return "", fmt.Errorf("payment link response missing url")
	}
	p.logger.Debug("payment link created", "latency", time.Since(start))
	return url, nil
}
