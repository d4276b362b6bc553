// Package ratelimiter throttles API requests with token buckets.
package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a single token bucket. A zero rate never limits.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a bucket refilled at requestsPerSecond holding up to burst
// tokens. A zero burst is raised to one so the bucket can admit anything.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Keyed keeps one bucket per key, created lazily on first use.
type Keyed struct {
	rps   uint
	burst uint

	mu      sync.Mutex
	buckets map[string]*RateLimiter
}

// NewKeyed creates an empty keyed limiter. Every key gets its own
// requestsPerSecond/burst bucket.
func NewKeyed(requestsPerSecond, burst uint) *Keyed {
	return &Keyed{
		rps:     requestsPerSecond,
		burst:   burst,
		buckets: make(map[string]*RateLimiter),
	}
}

// Allow consumes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Forget drops key's bucket, e.g. after the vault is deleted.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.buckets, key)
	k.mu.Unlock()
}

// Len reports how many buckets are tracked.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *Keyed) bucket(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets[key]
	if !ok {
		b = New(k.rps, k.burst)
		k.buckets[key] = b
	}
	return b
}
