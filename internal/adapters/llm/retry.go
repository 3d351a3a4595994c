package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/helix-collective/z88/internal/core"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NoRetry disables retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		exp.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	// attempts are bounded by MaxRetries, not wall time
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}

// Do runs fn until it succeeds, fails permanently, or retries run out.
// onRetry is called before each retry sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(err error, wait time.Duration)) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !core.IsRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, d time.Duration) { onRetry(err, d) }
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}
