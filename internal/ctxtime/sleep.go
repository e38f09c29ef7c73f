// Package ctxtime has context-aware waiting helpers used by the retry paths.
package ctxtime

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return nil
}

// Retry calls fn up to attempts times, waiting delay, 2*delay, 4*delay ...
// between failed calls. It returns nil on the first success, otherwise the
// last error from fn, or the context error if ctx ends while waiting.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if sleepErr := Sleep(ctx, delay<<(i-1)); sleepErr != nil {
				return sleepErr
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
