package chain

import (
	"context"
	"errors"
	"time"

	"github.com/devblac/syt-bridge/internal/domain"
)

// RetryPolicy bounds retries of read operations. Authorization reads do not
// go through it.
type RetryPolicy struct {
	Retries int
	Backoff time.Duration
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. Only ErrChainUnavailable is retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrChainUnavailable) || attempt >= p.Retries {
			return err
		}
		if p.Backoff <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		t := time.NewTimer(p.Backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
