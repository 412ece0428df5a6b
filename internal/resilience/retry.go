package resilience

import (
	"context"
	"errors"
	"time"

	"acp-gateway/internal/model"
)

// retryDelays is the fixed backoff schedule applied after rate-limit
// responses: three retries at 1s, 2s, and 4s.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Sleeper pauses for d or until the context is done. Injectable so tests
// don't wait on real clocks.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepWithContext is the production Sleeper.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryer re-runs a call after rate-limit errors on a fixed backoff
// schedule. Any other error returns immediately.
type Retryer struct {
	service string
	sleep   Sleeper
}

// NewRetryer builds a Retryer for one upstream service.
func NewRetryer(service string) *Retryer {
	return &Retryer{service: service, sleep: sleepWithContext}
}

// Do runs fn, retrying only on rate-limit errors. After the schedule is
// exhausted the last rate-limit error is returned.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.Is(err, model.ErrRateLimited) {
		return err
	}

	for _, delay := range retryDelays {
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
		RetriesTotal.WithLabelValues(r.service).Inc()
		err = fn(ctx)
		if err == nil || !errors.Is(err, model.ErrRateLimited) {
			return err
		}
	}
	return err
}
