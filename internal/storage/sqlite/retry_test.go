package sqlite

import (
	"errors"
	"testing"
	"time"
)

func TestRetryOnBusyRetriesContention(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")
	attempts := 0
	var slept []time.Duration

	err := retryOnBusy(DefaultRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return busy
		}
		return nil
	}, func(d time.Duration) { slept = append(slept, d) })

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(slept))
	}
	// Delays grow exponentially from the base; jitter only ever adds.
	cfg := DefaultRetryConfig()
	if slept[0] < cfg.BaseDelay || slept[1] < 2*cfg.BaseDelay {
		t.Fatalf("backoff too short: %v", slept)
	}
}

func TestRetryOnBusyGivesUp(t *testing.T) {
	busy := errors.New("database table is locked")
	attempts := 0

	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
	err := retryOnBusy(cfg, func() error {
		attempts++
		return busy
	}, func(time.Duration) {})

	if !errors.Is(err, busy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", attempts)
	}
}

func TestRetryOnBusyDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("constraint violation")
	attempts := 0

	err := retryOnBusy(DefaultRetryConfig(), func() error {
		attempts++
		return boom
	}, func(time.Duration) { t.Fatal("must not sleep") })

	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}
