package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/scan-io-git/autofix/pkg/shared/config"
)

// Backoff computes the delay before a provider retry: Initial * Multiplier^n, capped at Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// BackoffFromConfig reads the backoff settings of the remediation section.
func BackoffFromConfig(c config.Backoff) Backoff {
	return Backoff{Initial: c.Initial, Max: c.Max, Multiplier: c.Multiplier}
}

// Delay returns the wait before retry n, counted from zero.
func (b Backoff) Delay(n int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(n))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
