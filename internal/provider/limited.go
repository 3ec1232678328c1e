package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// Limits bound the calls made to one back end.
type Limits struct {
	Timeout           time.Duration
	MaxConcurrency    int
	RequestsPerSecond float64
	Burst             int
}

// Limited enforces a per call timeout, a concurrency cap and an optional rate
// limit in front of a Completer. One Limited is shared by every role using the
// same back end.
type Limited struct {
	inner   Completer
	timeout time.Duration
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewLimited wraps c with limits. Zero values disable the matching limit.
func NewLimited(c Completer, l Limits) *Limited {
	lim := &Limited{inner: c, timeout: l.Timeout}
	if l.MaxConcurrency > 0 {
		lim.sem = semaphore.NewWeighted(int64(l.MaxConcurrency))
	}
	if l.RequestsPerSecond > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		lim.limiter = rate.NewLimiter(rate.Limit(l.RequestsPerSecond), burst)
	}
	return lim
}

func (l *Limited) Name() string { return l.inner.Name() }

// Complete waits for a concurrency slot and the rate limiter, then calls the
// back end under the per call timeout. Expiry of that timeout is reported as a
// ProviderTimeout; cancellation of ctx is returned as is.
func (l *Limited) Complete(ctx context.Context, req Request) (string, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer l.sem.Release(1)
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", errors.NewProviderError(errors.ProviderRateLimited, l.Name(), err)
		}
	}

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	out, err := l.inner.Complete(callCtx, req)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if callCtx.Err() == context.DeadlineExceeded {
		if _, ok := errors.AsProviderError(err); !ok {
			return "", errors.NewProviderError(errors.ProviderTimeout, l.Name(), fmt.Errorf("no answer within %s: %w", l.timeout, err))
		}
	}
	return "", err
}
