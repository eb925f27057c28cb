package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
)

func TestDoSucceedsAfterRetryableFailure(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	got, err := Do(context.Background(), cfg, func(attempt int) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.NewError(domain.KindNetworkTransient, errors.New("flaky"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("expected success on second call, got %q after %d calls", got, calls)
	}
}

func TestDoAbortsOnTerminalError(t *testing.T) {
	cfg := DefaultConfig()

	calls := 0
	_, err := Do(context.Background(), cfg, func(attempt int) (int, error) {
		calls++
		return 0, domain.NewError(domain.KindValidationFailed, errors.New("bad magic"))
	})
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected validation error to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("terminal error must not be retried, got %d calls", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	_, err := Do(context.Background(), cfg, func(attempt int) (int, error) {
		calls++
		return 0, domain.NewError(domain.KindNetworkTransient, errors.New("still down"))
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Fatalf("expected the initial attempt plus MaxRetries calls, got %d", calls)
	}
}

func TestDoHonorsAdvisedWaitWithoutConsumingAttempt(t *testing.T) {
	const advised = 40 * time.Millisecond
	// MaxRetries of 0 would normally forbid any retry; a server-advised
	// wait must still be honored because it doesn't count as one.
	cfg := Config{MaxRetries: 0, InitialWait: time.Millisecond, MaxWait: time.Second, Multiplier: 2.0}

	calls := 0
	start := time.Now()
	got, err := Do(context.Background(), cfg, func(attempt int) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.NewWaitError(domain.KindRateLimited, advised, errors.New("FLOOD_WAIT"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("expected success on the post-wait call, got %q after %d calls", got, calls)
	}
	if elapsed := time.Since(start); elapsed < advised {
		t.Fatalf("expected to sleep at least the advised %v, slept %v", advised, elapsed)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, func(attempt int) (int, error) {
		return 0, domain.NewError(domain.KindNetworkTransient, errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation to surface, got %v", err)
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	backoff := ExponentialBackoff(2*time.Second, 10*time.Second)

	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
	} {
		if got := backoff(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
