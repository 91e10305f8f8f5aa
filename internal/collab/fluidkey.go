// Package collab wraps the third-party lookup, balance, and payment-link
// HTTP services. Failures are mapped to structured results at this boundary;
// nothing here propagates an upstream error shape to the pipeline.
package collab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"veilbot/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

var claimPattern = regexp.MustCompile(`^[a-z0-9]{3,20}$`)

// NormalizeClaim lowercases a user-supplied identity claim and strips the
// .fkey.id suffix. Returns "" when the remainder is not a valid handle.
func NormalizeClaim(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	c = strings.TrimSuffix(c, ".fkey.id")
	if !claimPattern.MatchString(c) {
		return ""
	}
	return c
}

// FluidClient resolves identity claims and reads stealth-address balances.
type FluidClient struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

type FluidConfig struct {
	APIBase string
	Logger  *slog.Logger
}

func NewFluidClient(cfg FluidConfig) *FluidClient {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.fkey.id"
	}
	return &FluidClient{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

// Lookup resolves claim to a stealth address. Unknown identities come back
// as Success=false with nil error; only transport-level failures error out,
// and callers are expected to treat those as "not found" too.
func (f *FluidClient) Lookup(ctx context.Context, claim string) (domain.LookupResult, error) {
	claim = NormalizeClaim(claim)
	if claim == "" {
		return domain.LookupResult{Success: false, Err: "invalid identity claim"}, nil
	}

	body, status, err := f.get(ctx, f.apiBase+"/"+claim)
	if err != nil {
		return domain.LookupResult{Success: false, Err: "lookup unreachable"}, err
	}
	if status == http.StatusNotFound {
		return domain.LookupResult{Success: false, Err: "identity not found"}, nil
	}
	if status != http.StatusOK {
		f.logger.Warn("identity lookup returned error status", "claim", claim, "status", status)
		return domain.LookupResult{Success: false, Err: fmt.Sprintf("lookup failed (%d)", status)}, nil
	}

	// Upstream shape is loose; pull only the fields we consume.
	addr := gjson.GetBytes(body, "address").String()
	if addr == "" {
		addr = gjson.GetBytes(body, "stealthAddress").String()
	}
	if addr == "" {
		return domain.LookupResult{Success: false, Err: "identity not found"}, nil
	}
	return domain.LookupResult{
		Success:    true,
		Address:    addr,
		Proof:      gjson.GetBytes(body, "proof").Raw,
		Registered: gjson.GetBytes(body, "isRegistered").Bool(),
	}, nil
}

// Balance returns a formatted balance for a stealth address.
func (f *FluidClient) Balance(ctx context.Context, address string) (string, error) {
	body, status, err := f.get(ctx, f.apiBase+"/balance/"+address)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("balance lookup failed (%d)", status)
	}
	amount := gjson.GetBytes(body, "balance").String()
	currency := gjson.GetBytes(body, "currency").String()
	if currency == "" {
		currency = "USDC"
	}
	if amount == "" {
		amount = "0"
	}
	return amount + " " + currency, nil
}

// get performs a GET with one retry on 5xx/429 and transport errors.
func (f *FluidClient) get(ctx context.Context, url string) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.logger.Warn("lookup request failed", "url", url, "err", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, lastErr
}
