// Package resilience wraps calls to the upstream property management
// system with a circuit breaker, bounded retries, an availability cache,
// and credential refresh.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"acp-gateway/internal/model"
)

// Breaker states.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	defaultFailureThreshold = 3
	defaultOpenTimeout      = 60 * time.Second
)

// Breaker is a per-service circuit breaker. After a run of consecutive
// failures it rejects calls outright for a cooldown period, then lets a
// single trial call through before deciding whether to close again.
type Breaker struct {
	service   string
	threshold int
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu            sync.Mutex
	state         breakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewBreaker builds a breaker with the default threshold and cooldown.
func NewBreaker(service string, logger *slog.Logger) *Breaker {
	return &Breaker{
		service:   service,
		threshold: defaultFailureThreshold,
		timeout:   defaultOpenTimeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Allow reports whether a call may proceed. In the open state it fails
// fast with a circuit-open error until the cooldown elapses; the first
// caller after the cooldown gets the single half-open trial slot, and
// concurrent callers keep failing fast until that trial resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return model.NewCircuitOpenError(b.service)
		}
		b.setState(stateHalfOpen)
		b.trialInFlight = true
		return nil
	case stateHalfOpen:
		if b.trialInFlight {
			return model.NewCircuitOpenError(b.service)
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// OnSuccess records a successful call, closing the circuit.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != stateClosed {
		b.logger.Info("circuit closed", "service", b.service)
		b.setState(stateClosed)
	}
}

// OnFailure records a failed call. Consecutive failures past the
// threshold open the circuit; a failed half-open trial re-opens it for a
// fresh cooldown.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case stateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	case stateHalfOpen:
		b.open()
	}
}

// open transitions to the open state. Caller holds the mutex.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.logger.Warn("circuit opened", "service", b.service, "failures", b.failures)
	b.setState(stateOpen)
}

// setState updates the state and its gauge. Caller holds the mutex.
func (b *Breaker) setState(s breakerState) {
	b.state = s
	CircuitState.WithLabelValues(b.service).Set(float64(s))
}

// State returns the current state name, for health reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
