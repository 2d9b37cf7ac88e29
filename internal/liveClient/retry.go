package liveClient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy reruns transient failures with a doubling delay. The default
// policy makes 3 attempts with 1s then 2s pauses.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds or the attempts are exhausted. Validation and
// server-reported errors are terminal immediately: retrying a 400 cannot
// change the answer.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.sleep == nil {
		p.sleep = sleepCtx
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var serverErr *ServerError
		if errors.Is(lastErr, ErrValidation) || errors.As(lastErr, &serverErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}
