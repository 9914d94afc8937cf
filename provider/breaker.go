package provider

import (
	"sync"
	"time"
)

// BreakerConfig configures the per-route circuit breaker. It is a
// simplification of the teacher's three-state llm/circuitbreaker (which
// adds a half-open probe state); the specification only needs a two-state
// closed/open breaker with a fixed cooldown, so the probe state is
// dropped rather than carried unused.
type BreakerConfig struct {
	FailureThreshold int
	CooldownMs       int64
}

// DefaultBreakerConfig mirrors the teacher's DefaultConfig threshold
// choices, adapted to the spec's cooldown-based reclaim.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, CooldownMs: 30_000}
}

// routeBreaker tracks the consecutive-failure count and open-until
// deadline for a single route. Synchronized with a plain sync.Mutex;
// unlike the Rust "mutex recovered on poisoning" note in §5, Go mutexes
// cannot be poisoned so no recovery wrapper is needed.
type routeBreaker struct {
	mu                  sync.Mutex
	config              BreakerConfig
	consecutiveFailures int
	openUntil           time.Time
}

func newRouteBreaker(config BreakerConfig) *routeBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.CooldownMs <= 0 {
		config.CooldownMs = DefaultBreakerConfig().CooldownMs
	}
	return &routeBreaker{config: config}
}

// isOpen reports whether the route is currently skipped, evaluated
// against now. Cooldown expiry reclaims the route without any external
// reset call.
func (b *routeBreaker) isOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.openUntil)
}

// recordSuccess resets the consecutive-failure counter.
func (b *routeBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// recordFailure increments the consecutive-failure counter and opens the
// route once it reaches the threshold, returning true if this call
// opened the circuit (so the caller can emit EventCircuitOpened exactly
// once per open transition).
func (b *routeBreaker) recordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.config.FailureThreshold {
		b.openUntil = now.Add(time.Duration(b.config.CooldownMs) * time.Millisecond)
		b.consecutiveFailures = 0
		return true
	}
	return false
}
