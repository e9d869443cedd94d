package resilience

import (
	"context"
	"sync"
)

// Service names for the registry. One breaker and retry preset per distinct
// downstream dependency.
const (
	ServiceScript = "script"
	ServiceImage  = "image"
	ServiceVideo  = "video"
	ServiceSpeech = "speech"
)

// Registry owns the process-wide breaker and rate-limiter state, keyed by
// service name. It is constructed once in main and passed down explicitly;
// sharing it across concurrent jobs is intentional, so a failing external
// service opens its breaker for every job at once.
type Registry struct {
	limiter *RateLimiter

	mu       sync.Mutex
	breakers map[string]*Breaker
	policies map[string]RetryPolicy
}

// NewRegistry creates a registry with the standard per-service retry presets.
func NewRegistry(rateCfg RateLimitConfig, breakerCfg BreakerConfig) *Registry {
	r := &Registry{
		limiter:  NewRateLimiter(rateCfg),
		breakers: make(map[string]*Breaker),
		policies: map[string]RetryPolicy{
			ServiceScript: ScriptRetryPolicy,
			ServiceImage:  ImageRetryPolicy,
			ServiceVideo:  VideoRetryPolicy,
			ServiceSpeech: SpeechRetryPolicy,
		},
	}
	for _, name := range []string{ServiceScript, ServiceImage, ServiceVideo, ServiceSpeech} {
		r.breakers[name] = NewBreaker(name, breakerCfg)
	}
	return r
}

// Breaker returns the breaker guarding the named service, creating one with
// defaults if the service is unknown.
func (r *Registry) Breaker(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, DefaultBreakerConfig)
		r.breakers[service] = b
	}
	return b
}

// Policy returns the retry preset for the named service.
func (r *Registry) Policy(service string) RetryPolicy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[service]; ok {
		return p
	}
	return ScriptRetryPolicy
}

// Call runs op with the full admission chain for one external call:
// rate-limiter admission, then the service's breaker gating a retry schedule.
// The retry loop runs inside the breaker, so the breaker counts one failure
// per exhausted schedule, not one per attempt.
func (r *Registry) Call(ctx context.Context, service string, op func(ctx context.Context) error) error {
	if err := r.limiter.Allow(service); err != nil {
		return err
	}

	policy := r.Policy(service)
	return r.Breaker(service).Execute(ctx, func(ctx context.Context) error {
		return Retry(ctx, policy, op)
	})
}
