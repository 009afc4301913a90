package batch

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff yields the delay before retry number attempt (1-based).
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles Base on every attempt up to Max, with optional
// +/- JitterFrac spread. The jittered delay never exceeds Max.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	JitterFrac float64
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	base, maxD := b.Base, b.Max
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := maxD
	if f := float64(base) * math.Pow(2, float64(attempt-1)); f < float64(maxD) {
		d = time.Duration(f)
	}
	if b.JitterFrac <= 0 {
		return d
	}
	delta := float64(d) * b.JitterFrac
	low := math.Max(float64(d)-delta, 0)
	high := math.Min(float64(d)+delta, float64(maxD))
	return time.Duration(low + rand.Float64()*(high-low))
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
