package queue

import (
	"context"
	"errors"
	"time"
)

// SettleRetry configures how Complete and Abandon are retried on transport errors.
type SettleRetry struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound for the delay between retries
	Multiplier  float64       // Exponential backoff multiplier
	Timeout     time.Duration // Per-attempt timeout
}

// DefaultSettleRetry returns a short synchronous retry policy.
func DefaultSettleRetry() SettleRetry {
	return SettleRetry{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  2,
		Timeout:     5 * time.Second,
	}
}

// Settle runs a settlement operation detached from the caller's cancellation,
// retrying on ErrConnection.
//
// A settlement whose acknowledgement was lost may already have been applied,
// so a retry that reports ErrLockLost is returned as is: the caller treats
// the message as handled elsewhere rather than assuming failure.
func Settle(ctx context.Context, cfg SettleRetry, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	detached := context.WithoutCancel(ctx)
	backoff := cfg.BaseDelay

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(detached, cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConnection) {
			return err
		}
		lastErr = err

		if attempt < cfg.MaxAttempts-1 {
			time.Sleep(backoff)
			backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			if backoff > cfg.MaxDelay {
				backoff = cfg.MaxDelay
			}
		}
	}

	return lastErr
}
