package llm

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/helix-collective/z88/internal/core"
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a bucket that holds burst tokens and refills at
// perMinute tokens per minute.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(perMinute) / 60,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available or ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration(float64(time.Second) * (1 - r.tokens) / r.refillRate)
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	r.lastRefill = now
	r.tokens = math.Min(r.maxTokens, r.tokens+elapsed.Seconds()*r.refillRate)
}

// LimiterRegistry hands out one limiter per provider.
type LimiterRegistry struct {
	perMinute int
	limiters  map[core.Provider]*RateLimiter
	mu        sync.Mutex
}

// NewLimiterRegistry creates a registry; perMinute <= 0 disables limiting.
func NewLimiterRegistry(perMinute int) *LimiterRegistry {
	return &LimiterRegistry{
		perMinute: perMinute,
		limiters:  make(map[core.Provider]*RateLimiter),
	}
}

// Get returns the limiter for p, or nil when limiting is disabled.
func (r *LimiterRegistry) Get(p core.Provider) *RateLimiter {
	if r == nil || r.perMinute <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[p]; ok {
		return l
	}
	// a sixth of the minute's budget may burst
	l := NewRateLimiter(r.perMinute, r.perMinute/6)
	r.limiters[p] = l
	return l
}

// Wait acquires a token for p; it returns immediately when disabled.
func (r *LimiterRegistry) Wait(ctx context.Context, p core.Provider) error {
	l := r.Get(p)
	if l == nil {
		return nil
	}
	return l.Acquire(ctx)
}
