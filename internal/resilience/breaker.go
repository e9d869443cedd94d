package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting the downstream service.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the current mode of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes the breaker's transition thresholds.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before CLOSED -> OPEN
	RecoveryTimeout  time.Duration // Time after last failure before OPEN -> HALF_OPEN
	SuccessThreshold int           // Consecutive successes in HALF_OPEN before -> CLOSED
}

// DefaultBreakerConfig suits slow, billable generation services: open after a
// handful of consecutive failures, probe again after a minute.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
	SuccessThreshold: 2,
}

// Breaker guards one external dependency. One instance per downstream
// service, shared process-wide so a failing service opens for all jobs.
// Safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int // Consecutive failures
	successes    int // Consecutive successes (HALF_OPEN probing)
	lastFailedAt time.Time
}

// NewBreaker creates a closed breaker for the named service.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = DefaultBreakerConfig.SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig.RecoveryTimeout
	}
	return &Breaker{name: name, cfg: cfg, state: BreakerClosed}
}

// State returns the breaker's current mode.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker. While OPEN and inside the recovery
// window, op is never invoked and ErrCircuitOpen is returned. Retry schedules
// run inside op; the breaker counts one failure per exhausted op.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err == nil)
	if err != nil {
		return err
	}
	return nil
}

// admit decides whether a call may proceed, moving OPEN -> HALF_OPEN when the
// recovery timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return nil
	case BreakerOpen:
		if time.Since(b.lastFailedAt) >= b.cfg.RecoveryTimeout {
			b.state = BreakerHalfOpen
			b.successes = 0
			return nil
		}
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = BreakerClosed
				b.successes = 0
			}
		}
		return
	}

	b.lastFailedAt = time.Now()
	b.successes = 0

	switch b.state {
	case BreakerHalfOpen:
		// A single probe failure reopens the circuit
		b.state = BreakerOpen
		b.failures = 1
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
		}
	case BreakerOpen:
		b.failures++
	}
}
