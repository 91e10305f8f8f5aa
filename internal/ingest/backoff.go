package ingest

import "time"

const (
	backoffBase    = 2 * time.Second
	backoffCeiling = 60 * time.Second
)

// Backoff returns the delay before reconnect attempt n (0-based): base delay
// doubling each attempt, capped at the ceiling. Pure so the policy is
// testable independent of the retry loop.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCeiling {
			return backoffCeiling
		}
	}
	return d
}
