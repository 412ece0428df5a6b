package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a token is considered stale.
const refreshBuffer = 60 * time.Second

// FetchTokenFunc obtains a fresh credential from the upstream auth
// endpoint.
type FetchTokenFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenSource caches an upstream bearer token and refreshes it before it
// expires. Refresh is single-flight: concurrent callers wait for one
// fetch rather than stampeding the auth endpoint.
type TokenSource struct {
	fetch FetchTokenFunc
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(fetch FetchTokenFunc) *TokenSource {
	return &TokenSource{fetch: fetch, now: time.Now}
}

// Token returns a credential valid for at least the refresh buffer,
// fetching a new one if needed.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiresAt.Add(-refreshBuffer)) {
		return ts.token, nil
	}

	token, expiresAt, err := ts.fetch(ctx)
	if err != nil {
		TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refreshing upstream token: %w", err)
	}
	TokenRefreshTotal.WithLabelValues("ok").Inc()
	ts.token = token
	ts.expiresAt = expiresAt
	return ts.token, nil
}

// Invalidate discards the cached token, forcing the next caller to fetch.
// Used when the upstream rejects a credential mid-lifetime.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
}
