package utils

import (
	"context"
	"math/rand"
	"time"
)

// Backoff retries fn with exponential delay plus jitter. Retryable
// classifies which errors are worth another attempt; a nil classifier
// retries everything.
type Backoff struct {
	Base       time.Duration
	Jitter     time.Duration
	MaxRetries int
	Retryable  func(error) bool
}

func (b Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	var err error
	for i := 0; i <= b.MaxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if i == b.MaxRetries {
			break
		}
		// backoff exponencial + jitter
		sleep := time.Duration(1<<i) * base
		if b.Jitter > 0 {
			sleep += time.Duration(rand.Int63n(int64(b.Jitter)))
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
