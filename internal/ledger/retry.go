package ledger

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/erazemk/oprema/internal/store"
)

const jitterFactor = 0.3

// retryFunc is one attempt at a reservation line.
type retryFunc func(ctx context.Context) error

// retryWithBackoff runs fn until it succeeds, fails with a permanent error or
// runs out of attempts. Only a lost claim race (store.ErrAssetAlreadyClaimed)
// is retried; the delay doubles from baseDelay with up to 30% jitter.
// onRetry is called before every retry.
func retryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, fn retryFunc, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Float64() * float64(delay) * jitterFactor)

			if onRetry != nil {
				onRetry(attempt, lastErr)
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, store.ErrAssetAlreadyClaimed)
}
