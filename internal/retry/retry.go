// Package retry wraps the exponential-backoff machinery behind a small
// policy value so callers keep retry behavior out of their business logic
// and tests can exercise it in isolation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential backoff. The zero value retries
// three times starting at 500ms.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultStatusWrite is the policy for terminal status writes: losing one of
// those strands a job or batch, so it is retried harder than anything else.
var DefaultStatusWrite = Policy{MaxRetries: 5, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}

// Do runs op, retrying transient failures until the policy or the context is
// exhausted. Wrap an error with Permanent to stop retrying immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	} else {
		b.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))
}

// Permanent marks err as non-retryable for Do.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
