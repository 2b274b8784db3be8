// Package resilience wraps strategy calls with per-strategy circuit
// breakers, deadlines, panic capture, error classification, error trend
// analysis and throttled recovery.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// Gauge maps a state to the value exported by metrics.
func (s BreakerState) Gauge() float64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	}
	return 0
}

// BreakerConfig tunes a breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int `json:"failure_threshold"`
	// RecoveryTimeout is how long an open breaker waits before letting a
	// trial call through.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
}

// DefaultBreakerConfig opens after 5 failures and retries after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Strategy    string       `json:"strategy"`
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
	NextRetry   time.Time    `json:"next_retry,omitempty"`
}

// Breaker is a closed/open/half-open circuit breaker. In half-open state a
// single trial call is let through; its outcome closes or reopens the
// breaker.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	nextRetry   time.Time
	probing     bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{name: name, cfg: cfg, now: now, state: StateClosed}
}

// Allow reports whether a call may proceed, moving an open breaker to
// half-open once its recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(b.nextRetry) {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess closes a half-open breaker and resets the failure count.
func (b *Breaker) RecordSuccess() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.nextRetry = time.Time{}
	}
	return b.state
}

// RecordFailure counts a failure, opening the breaker at the threshold or
// reopening it from half-open.
func (b *Breaker) RecordFailure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures++
	b.lastFailure = now
	b.probing = false

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open(now)
		}
	case StateHalfOpen:
		b.open(now)
	}
	return b.state
}

func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	b.nextRetry = now.Add(b.cfg.RecoveryTimeout)
}

// Release gives back a half-open trial slot when the call ended without a
// verdict, e.g. because the caller cancelled.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// Trip forces the breaker open.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.open(b.now())
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.nextRetry = time.Time{}
}

// State returns the current state without transitioning.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Strategy:    b.name,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		NextRetry:   b.nextRetry,
	}
}
