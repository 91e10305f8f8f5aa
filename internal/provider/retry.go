package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	maxAttempts  = 4
	retryBase    = time.Second
	retryCeiling = 20 * time.Second
)

// retryDelay returns the wait before retry n (1-based): quadratic growth
// capped at the ceiling. Pure; jitter is the caller's business.
func retryDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := time.Duration(retry*retry) * retryBase
	if d > retryCeiling {
		return retryCeiling
	}
	return d
}

// retryable reports whether an upstream status warrants another attempt.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// doWithRetry runs the request until a usable response, the attempt budget
// runs out, or ctx is cancelled. buildReq is called per attempt because a
// request body cannot be replayed. Retryable responses are drained and
// closed here; anything else is the caller's to close.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(attempt-1) + time.Duration(rand.Int63n(int64(retryBase)))
			logger.Warn("retrying request", "attempt", attempt, "backoff", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("request failed", "attempt", attempt, "err", err)
			continue
		}

		if retryable(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream returned %d: %s", resp.StatusCode, body)
			logger.Warn("retryable upstream status", "attempt", attempt, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}
