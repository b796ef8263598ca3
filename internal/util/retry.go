package util

import (
	"context"
	"errors"
	"time"
)

// RetryErrWithContext calls fn up to maxTries times until it returns nil,
// waiting delay*attempt between attempts. If maxTries <= 0, it defaults
// to 1. Context errors, from ctx or returned by fn, end the loop at once;
// otherwise the last error is returned.
func RetryErrWithContext(ctx context.Context, maxTries int, delay time.Duration, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times until it returns a result
// and nil error, or until ctx is done. Between attempts it waits
// delay*attempt. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if i > 0 && delay > 0 {
			timer := time.NewTimer(delay * time.Duration(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
