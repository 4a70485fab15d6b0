package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy retries retryable failures with exponential backoff and jitter.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) (int, error) {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}

		var f *Failure
		if !errors.As(err, &f) || !f.Retryable() || attempt == p.MaxRetries {
			return attempt + 1, err
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, &Failure{Kind: KindCanceled, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return p.MaxRetries + 1, err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	// Up to 25% jitter.
	return delay + time.Duration(rand.Int64N(int64(delay)/4+1))
}
