package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"acp-gateway/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *Breaker {
	b := NewBreaker("pms", testLogger())
	b.now = clock.now
	return b
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() after %d failures error = %v", i, err)
		}
		b.OnFailure()
	}
	if b.State() != "closed" {
		t.Fatalf("state after 2 failures = %s, want closed", b.State())
	}

	b.OnFailure()
	if b.State() != "open" {
		t.Fatalf("state after 3 failures = %s, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("Allow() while open error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed (failures were not consecutive)", b.State())
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	clock.advance(59 * time.Second)
	if err := b.Allow(); !errors.Is(err, model.ErrCircuitOpen) {
		t.Fatalf("Allow() before cooldown error = %v, want ErrCircuitOpen", err)
	}

	clock.advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() trial call error = %v", err)
	}
	// A second caller while the trial is in flight still fails fast.
	if err := b.Allow(); !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("Allow() concurrent with trial error = %v, want ErrCircuitOpen", err)
	}

	b.OnSuccess()
	if b.State() != "closed" {
		t.Errorf("state after successful trial = %s, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after close error = %v", err)
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	clock.advance(61 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() trial call error = %v", err)
	}
	b.OnFailure()

	if b.State() != "open" {
		t.Fatalf("state after failed trial = %s, want open", b.State())
	}
	// The cooldown restarts from the failed trial.
	clock.advance(59 * time.Second)
	if err := b.Allow(); !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("Allow() during restarted cooldown error = %v, want ErrCircuitOpen", err)
	}
	clock.advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after restarted cooldown error = %v", err)
	}
}

func TestRetryBackoffSchedule(t *testing.T) {
	var slept []time.Duration
	r := NewRetryer("pms")
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return model.NewRateLimitError("pms")
	})
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("Do() error = %v, want ErrRateLimited", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (initial + 3 retries)", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	r := NewRetryer("pms")
	r.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return model.NewRateLimitError("pms")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryOnlyOnRateLimit(t *testing.T) {
	r := NewRetryer("pms")
	r.sleep = func(context.Context, time.Duration) error {
		t.Fatal("slept for a non-retryable error")
		return nil
	}

	calls := 0
	wantErr := model.NewUpstreamError("pms", fmt.Errorf("connection refused"))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Errorf("Do() error = %v, want ErrUpstreamUnavailable", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	r := NewRetryer("pms")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(context.Context) error {
		return model.NewRateLimitError("pms")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestExecutorFeedsBreaker(t *testing.T) {
	e := NewExecutor("pms", testLogger())
	e.retryer.sleep = func(context.Context, time.Duration) error { return nil }
	ctx := context.Background()

	upstreamErr := model.NewUpstreamError("pms", fmt.Errorf("503"))
	for i := 0; i < 3; i++ {
		if err := e.Do(ctx, func(context.Context) error { return upstreamErr }); !errors.Is(err, model.ErrUpstreamUnavailable) {
			t.Fatalf("Do() error = %v, want ErrUpstreamUnavailable", err)
		}
	}

	err := e.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("Do() after 3 upstream failures error = %v, want ErrCircuitOpen", err)
	}
}

func TestExecutorExhaustedRateLimitsTrip(t *testing.T) {
	e := NewExecutor("pms", testLogger())
	e.retryer.sleep = func(context.Context, time.Duration) error { return nil }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := e.Do(ctx, func(context.Context) error { return model.NewRateLimitError("pms") })
		if !errors.Is(err, model.ErrRateLimited) {
			t.Fatalf("Do() error = %v, want ErrRateLimited", err)
		}
	}
	if e.CircuitState() != "open" {
		t.Fatalf("circuit state = %s, want open after exhausted rate limits", e.CircuitState())
	}
	if err := e.Do(ctx, func(context.Context) error { return nil }); !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("Do() with open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestExecutorDomainErrorsDoNotTrip(t *testing.T) {
	e := NewExecutor("pms", testLogger())
	ctx := context.Background()

	mismatch := model.NewPriceMismatchError(100, 150, "USD")
	for i := 0; i < 5; i++ {
		if err := e.Do(ctx, func(context.Context) error { return mismatch }); !errors.Is(err, model.ErrPriceMismatch) {
			t.Fatalf("Do() error = %v, want ErrPriceMismatch", err)
		}
	}
	if e.CircuitState() != "closed" {
		t.Errorf("circuit state = %s, want closed", e.CircuitState())
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c.now = clock.now
	ctx := context.Background()

	key := CacheKey("hotel-1", "2026-09-01", "2026-09-03", "double")
	if err := c.Set(ctx, key, []byte(`[]`), DefaultAvailabilityTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok, _ := c.Get(ctx, key); !ok {
		t.Fatal("Get() fresh entry miss, want hit")
	}

	clock.advance(121 * time.Second)
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Error("Get() expired entry hit, want miss")
	}
}

func TestMemoryCacheInvalidateEntity(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	k1 := CacheKey("hotel-1", "2026-09-01", "2026-09-03", "double")
	k2 := CacheKey("hotel-1", "2026-09-05", "2026-09-06", "")
	k3 := CacheKey("hotel-2", "2026-09-01", "2026-09-03", "double")
	for _, k := range []string{k1, k2, k3} {
		if err := c.Set(ctx, k, []byte(`[]`), DefaultAvailabilityTTL); err != nil {
			t.Fatalf("Set(%s) error = %v", k, err)
		}
	}

	if err := c.InvalidateEntity(ctx, "hotel-1"); err != nil {
		t.Fatalf("InvalidateEntity() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, k1); ok {
		t.Error("hotel-1 entry survived invalidation")
	}
	if _, ok, _ := c.Get(ctx, k2); ok {
		t.Error("hotel-1 second entry survived invalidation")
	}
	if _, ok, _ := c.Get(ctx, k3); !ok {
		t.Error("hotel-2 entry was invalidated, want kept")
	}
}

func TestTokenSourceRefreshBuffer(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetches := 0
	ts := NewTokenSource(func(context.Context) (string, time.Time, error) {
		fetches++
		return fmt.Sprintf("token-%d", fetches), clock.now().Add(10 * time.Minute), nil
	})
	ts.now = clock.now
	ctx := context.Background()

	tok, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "token-1" || fetches != 1 {
		t.Fatalf("first Token() = %s (fetches %d), want token-1 with 1 fetch", tok, fetches)
	}

	// Still comfortably before the refresh window: cached.
	clock.advance(8 * time.Minute)
	if tok, _ := ts.Token(ctx); tok != "token-1" || fetches != 1 {
		t.Errorf("cached Token() = %s (fetches %d), want token-1 with 1 fetch", tok, fetches)
	}

	// Inside the 60s pre-expiry buffer: refreshed.
	clock.advance(90 * time.Second)
	if tok, _ := ts.Token(ctx); tok != "token-2" || fetches != 2 {
		t.Errorf("refreshed Token() = %s (fetches %d), want token-2 with 2 fetches", tok, fetches)
	}
}

func TestTokenSourceInvalidate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetches := 0
	ts := NewTokenSource(func(context.Context) (string, time.Time, error) {
		fetches++
		return fmt.Sprintf("token-%d", fetches), clock.now().Add(time.Hour), nil
	})
	ts.now = clock.now
	ctx := context.Background()

	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	ts.Invalidate()
	tok, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("Token() after invalidate error = %v", err)
	}
	if tok != "token-2" {
		t.Errorf("Token() after invalidate = %s, want token-2", tok)
	}
}
