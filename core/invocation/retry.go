package invocation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryLimit bounds the number of attempts made by Retry. The zero value
// allows a single attempt.
type RetryLimit struct {
	attempts  int
	unbounded bool
}

// Limit allows at most n attempts. Values below one are treated as one.
func Limit(n int) RetryLimit {
	return RetryLimit{attempts: max(n, 1)}
}

// Unbounded keeps retrying until the operation succeeds or the context ends.
func Unbounded() RetryLimit {
	return RetryLimit{unbounded: true}
}

// RetryLimitFromCount maps a configured retry count, where 0 means retry
// forever, onto a RetryLimit.
func RetryLimitFromCount(count int) RetryLimit {
	if count <= 0 {
		return Unbounded()
	}
	return Limit(count)
}

func (l RetryLimit) IsUnbounded() bool { return l.unbounded }

// Allows reports whether attempt (1-based) may run.
func (l RetryLimit) Allows(attempt int) bool {
	if l.unbounded {
		return true
	}
	return attempt <= max(l.attempts, 1)
}

func (l RetryLimit) String() string {
	if l.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", max(l.attempts, 1))
}

// Backoff is the linear delay applied after a failed attempt.
func Backoff(delay time.Duration, attempt int) time.Duration {
	return delay * time.Duration(attempt)
}

// RetryFunc is a single attempt. Returning a StopRetry error ends the loop
// immediately.
type RetryFunc func(ctx context.Context, attempt int) error

type stopRetry struct{ err error }

func (s stopRetry) Error() string { return s.err.Error() }
func (s stopRetry) Unwrap() error { return s.err }

// StopRetry marks err as not worth retrying.
func StopRetry(err error) error {
	if err == nil {
		return nil
	}
	return stopRetry{err: err}
}

// Retry calls fn until it succeeds, the limit is reached or ctx is done.
// After a failed attempt it waits delay × attempt before the next one. The
// returned error is the last attempt's error.
func Retry(ctx context.Context, limit RetryLimit, delay time.Duration, fn RetryFunc, onFailure func(attempt int, err error)) error {
	var lastErr error
	for attempt := 1; limit.Allows(attempt); attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		var stop stopRetry
		if errors.As(err, &stop) {
			return stop.err
		}
		if !limit.Allows(attempt + 1) {
			break
		}
		if err := sleep(ctx, Backoff(delay, attempt)); err != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
