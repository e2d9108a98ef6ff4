package query

import (
	"math/rand"
	"time"
)

// Backoff returns the delay to apply before the given retry attempt.
// Attempt numbering starts at 1. Returning zero skips the sleep.
type Backoff func(attempt int) time.Duration

// DefaultBackoff is exponential with full jitter: 50ms base, doubling per
// attempt, capped at 5s.
func DefaultBackoff(attempt int) time.Duration {
	const (
		base    = 50 * time.Millisecond
		ceiling = 5 * time.Second
	)
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// ConstantBackoff always delays by d.
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}
