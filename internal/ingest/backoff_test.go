package ingest

import (
	"testing"
	"time"
)

func TestBackoff_DoublesFromBase(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
	}
	for _, c := range cases {
		if got := Backoff(c.attempt); got != c.want {
			t.Fatalf("attempt %d: expected %v, got %v", c.attempt, c.want, got)
		}
	}
}

func TestBackoff_CapsAtCeiling(t *testing.T) {
	for _, attempt := range []int{5, 6, 10, 100} {
		if got := Backoff(attempt); got != backoffCeiling {
			t.Fatalf("attempt %d: expected ceiling %v, got %v", attempt, backoffCeiling, got)
		}
	}
}

func TestBackoff_NegativeAttemptIsBase(t *testing.T) {
	if got := Backoff(-3); got != backoffBase {
		t.Fatalf("expected base %v, got %v", backoffBase, got)
	}
}
