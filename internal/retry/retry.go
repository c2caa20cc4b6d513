// Package retry bounds how long startup waits for storage and the broker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy is a fixed-interval retry budget.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Do calls fn until it succeeds, the attempts run out, or ctx is done. The final
// attempt's error is wrapped together with ErrExhausted.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, what string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("connected after retry", zap.String("target", what), zap.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		logger.Warn("connection attempt failed",
			zap.String("target", what),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", p.Interval),
			zap.Error(err),
		)
		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s after %d attempts: %w: %w", what, attempts, ErrExhausted, lastErr)
}
