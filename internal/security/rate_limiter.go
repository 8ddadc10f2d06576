package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/cv-anonymizer/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter throttles API clients with one token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}

	b := r.getBucket(clientIP)
	return b.limiter.AllowN(r.now(), 1)
}

// RetryAfter estimates how long clientIP must wait for its next token.
func (r *RateLimiter) RetryAfter(clientIP string) time.Duration {
	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()
	if !exists || b.limiter.Limit() <= 0 {
		return 0
	}

	missing := 1 - b.limiter.TokensAt(r.now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second))
}

// getBucket gets or creates the bucket for a client IP
func (r *RateLimiter) getBucket(clientIP string) *bucket {
	now := r.now()

	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if exists {
		r.mu.Lock()
		b.lastSeen = now
		r.mu.Unlock()
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := r.buckets[clientIP]; exists {
		b.lastSeen = now
		return b
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = r.config.RequestsPerMin
	}

	b = &bucket{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), burst),
		lastSeen: now,
	}
	r.buckets[clientIP] = b
	return b
}

// CleanupOldBuckets drops buckets idle for longer than maxIdle
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine prunes idle buckets until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
