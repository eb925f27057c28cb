// Package retry implements the exponential-backoff retry loop used by
// the download executor. A wait advised by a KindRateLimited or
// KindSlowMode error overrides the computed backoff, and non-retryable
// kinds abort immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// Config holds retry configuration. MaxRetries counts retries beyond the
// initial attempt: MaxRetries of 3 means up to 4 calls in total.
type Config struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig is 3 retries with a 2s base delay, matching the
// MAX_DOWNLOAD_RETRIES / RETRY_DELAY defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		InitialWait: 2 * time.Second,
		MaxWait:     60 * time.Second,
		Multiplier:  2.0,
	}
}

// Do runs fn once, then retries retryable failures up to cfg.MaxRetries
// more times. A non-retryable domain.Error (per ErrorKind.Retryable)
// aborts without further attempts. A KindRateLimited/KindSlowMode error
// with a server-advised Wait sleeps that exact duration and does not
// count against MaxRetries; only plain transient failures do.
func Do[T any](ctx context.Context, cfg Config, fn func(attempt int) (T, error)) (T, error) {
	var result T
	var err error

	wait := cfg.InitialWait
	attempt := 1
	retries := 0

	for {
		result, err = fn(attempt)
		if err == nil {
			return result, nil
		}

		kind := domain.KindOf(err)
		if !kind.Retryable() {
			return result, err
		}

		delay := wait
		advised := false
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Wait > 0 {
			delay = derr.Wait
			advised = true
		}

		if !advised {
			if retries == cfg.MaxRetries {
				return result, err
			}
			retries++
		}
		attempt++

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}

		if !advised {
			wait = time.Duration(float64(wait) * cfg.Multiplier)
			if wait > cfg.MaxWait {
				wait = cfg.MaxWait
			}
		}
	}
}

// ExponentialBackoff returns a backoff function with exponential growth,
// kept for callers that compute delays outside of Do.
func ExponentialBackoff(initial, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		wait := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		if wait > max {
			return max
		}
		return wait
	}
}
