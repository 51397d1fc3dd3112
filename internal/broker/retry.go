// ABOUTME: Bounded retry with exponential backoff for store and transport calls
// ABOUTME: Retries are capped; exhaustion surfaces the last error to the dispatcher

package broker

import (
	"context"
	"errors"
	"time"

	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/store"
	"github.com/2389/relay-broker/internal/transport"
)

// RetryPolicy bounds retries for transient failures. The handler is not a
// durable retry queue: after MaxAttempts the error goes back to the
// dispatcher, whose own redrive policy takes over.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used when config leaves retry settings unset.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}

// Do runs op, retrying with doubling backoff while retryable reports the
// error as transient. The last error is returned on exhaustion or context
// cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil || !retryable(err) || attempt == attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// storeRetryable treats any store failure as transient except the
// invariant errors, which retrying cannot fix.
func storeRetryable(err error) bool {
	return !errors.Is(err, store.ErrConditionFailed) &&
		!errors.Is(err, store.ErrNotFound) &&
		!errors.Is(err, registry.ErrDuplicateConnection)
}

// transportRetryable retries throttling only. Gone is terminal for the
// target connection and anything else is not known to be transient.
func transportRetryable(err error) bool {
	return errors.Is(err, transport.ErrThrottled)
}
