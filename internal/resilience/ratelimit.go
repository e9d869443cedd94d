package resilience

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when admission is rejected before any downstream
// call is attempted.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig bounds how fast callers may admit new external calls.
type RateLimitConfig struct {
	Capacity  int // Token bucket capacity; refills at Capacity/60 tokens per second
	PerMinute int // Sliding-window ceiling over the last minute
	PerHour   int // Sliding-window ceiling over the last hour
}

// RateLimiter applies token-bucket admission plus sliding per-minute and
// per-hour ceilings, tracked per caller identity. Safe for concurrent use
// across workers and jobs.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	callers map[string]*callerLimits
}

type callerLimits struct {
	bucket *rate.Limiter
	minute *slidingWindow
	hour   *slidingWindow
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		callers: make(map[string]*callerLimits),
	}
}

// Allow admits or rejects one call for the caller. Window ceilings are
// checked before a bucket token is consumed, so a rejected call leaves the
// bucket untouched.
func (rl *RateLimiter) Allow(caller string) error {
	rl.mu.Lock()
	limits, ok := rl.callers[caller]
	if !ok {
		limits = &callerLimits{
			bucket: rate.NewLimiter(rate.Limit(float64(rl.cfg.Capacity)/60.0), rl.cfg.Capacity),
			minute: newSlidingWindow(time.Minute),
			hour:   newSlidingWindow(time.Hour),
		}
		rl.callers[caller] = limits
	}
	rl.mu.Unlock()

	limits.minute.mu.Lock()
	defer limits.minute.mu.Unlock()
	limits.hour.mu.Lock()
	defer limits.hour.mu.Unlock()

	now := time.Now()
	if rl.cfg.PerMinute > 0 && limits.minute.countLocked(now) >= rl.cfg.PerMinute {
		return ErrRateLimited
	}
	if rl.cfg.PerHour > 0 && limits.hour.countLocked(now) >= rl.cfg.PerHour {
		return ErrRateLimited
	}

	if !limits.bucket.Allow() {
		return ErrRateLimited
	}

	limits.minute.recordLocked(now)
	limits.hour.recordLocked(now)
	return nil
}

// slidingWindow counts admissions inside a trailing time span.
type slidingWindow struct {
	mu     sync.Mutex
	span   time.Duration
	events []time.Time
}

func newSlidingWindow(span time.Duration) *slidingWindow {
	return &slidingWindow{span: span}
}

// countLocked prunes expired events and returns the count. Caller holds mu.
func (w *slidingWindow) countLocked(now time.Time) int {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
	return len(w.events)
}

// recordLocked appends one admission. Caller holds mu.
func (w *slidingWindow) recordLocked(now time.Time) {
	w.events = append(w.events, now)
}
