package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff builds the capped exponential backoff of spec
// §4.D: starts at 250ms, doubles, caps at 30s, with ±20% jitter, and
// retries forever until ctx is cancelled.
func newReconnectBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // retry forever; ctx governs cancellation
	return backoff.WithContext(b, ctx)
}

// reconnectWithBackoff calls attempt repeatedly until it succeeds or
// ctx is done, sleeping per newReconnectBackoff between attempts.
func reconnectWithBackoff(ctx context.Context, attempt func() error) error {
	return backoff.Retry(attempt, newReconnectBackoff(ctx))
}
