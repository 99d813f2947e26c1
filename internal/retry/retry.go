// Package retry runs operations under a capped exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	Attempts   int           // total attempts, including the first
	Initial    time.Duration // delay before the second attempt
	Multiplier float64
}

// Default is used for bank API pages and refresh polling.
var Default = Policy{Attempts: 5, Initial: 500 * time.Millisecond, Multiplier: 2}

// NotifyFunc is called before each retry with the failed attempt number
// (1-based), its error, and the delay until the next attempt.
type NotifyFunc func(attempt int, err error, delay time.Duration)

// Do runs op until it succeeds, returns a Permanent error, the policy is
// exhausted, or ctx is done. The last error from op is returned.
func Do(ctx context.Context, p Policy, op func() error, notify NotifyFunc) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx), func(err error, delay time.Duration) {
		if notify != nil {
			notify(attempt, err, delay)
		}
	})
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
