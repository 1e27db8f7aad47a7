package cmn

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes the exponential-with-jitter delay for retry attempt
// n (0-based): base * 4^n, jittered +/-25%, matching the executor's
// documented 1s/4s/16s schedule when base == 1s.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 4
	}
	jitter := 0.75 + rand.Float64()*0.5 // 0.75x .. 1.25x
	return time.Duration(float64(d) * jitter)
}

// Retry calls fn up to attempts times, sleeping Backoff(base, i) between
// tries, stopping early on ctx cancellation or on a nil error. It returns
// the last error seen.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(base, i)):
		}
	}
	return err
}
