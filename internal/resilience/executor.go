package resilience

import (
	"context"
	"errors"
	"log/slog"

	"acp-gateway/internal/model"
)

// Executor composes the breaker and retryer around upstream calls. Call
// ordering: fail fast on an open circuit, then run the call under the
// rate-limit retry schedule, then feed the outcome back to the breaker.
type Executor struct {
	service string
	breaker *Breaker
	retryer *Retryer
}

func NewExecutor(service string, logger *slog.Logger) *Executor {
	return &Executor{
		service: service,
		breaker: NewBreaker(service, logger),
		retryer: NewRetryer(service),
	}
}

// Do runs fn with circuit and retry protection. Upstream availability
// failures and rate limits that exhaust the retry schedule count against
// the breaker; domain-level rejections do not.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := e.breaker.Allow(); err != nil {
		UpstreamRequestsTotal.WithLabelValues(e.service, "circuit_open").Inc()
		return err
	}

	err := e.retryer.Do(ctx, fn)
	switch {
	case err == nil:
		e.breaker.OnSuccess()
		UpstreamRequestsTotal.WithLabelValues(e.service, "ok").Inc()
	case errors.Is(err, model.ErrUpstreamUnavailable):
		e.breaker.OnFailure()
		UpstreamRequestsTotal.WithLabelValues(e.service, "upstream_error").Inc()
	case errors.Is(err, model.ErrRateLimited):
		// Throttling that survives the whole retry schedule counts as a
		// failure; a single 429 never reaches this point.
		e.breaker.OnFailure()
		UpstreamRequestsTotal.WithLabelValues(e.service, "rate_limited").Inc()
	default:
		e.breaker.OnSuccess()
		UpstreamRequestsTotal.WithLabelValues(e.service, "rejected").Inc()
	}
	return err
}

// CircuitState exposes the breaker state for health reporting.
func (e *Executor) CircuitState() string {
	return e.breaker.State()
}
