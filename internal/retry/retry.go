// Package retry runs remote calls on an exponential backoff schedule
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// DefaultBackoff is the wait before the first retry when none is set
const DefaultBackoff = time.Second

// Policy is a backoff schedule. The wait starts at Backoff and doubles after
// every failed attempt.
type Policy struct {
	Retries int // attempts after the first
	Backoff time.Duration
}

// Permanent marks err as not worth retrying. Do returns err itself.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBackoff
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do calls op until it succeeds, returns a Permanent error, runs out of
// retries or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, log logrus.FieldLogger, op func() error) error {
	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		log.WithFields(logrus.Fields{"attempt": attempt, "wait": wait}).WithError(err).Warn("Retrying request")
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}
