package security

import (
	"testing"
	"time"

	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/stretchr/testify/assert"
)

func frozenLimiter(cfg config.RateLimitConfig, at time.Time) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return at }
	return rl
}

func TestRateLimiter(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("burst then throttle per client", func(t *testing.T) {
		rl := frozenLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 2}, start)

		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"))

		wait := rl.RetryAfter("10.0.0.1")
		assert.InDelta(t, float64(time.Second), float64(wait), float64(10*time.Millisecond))
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		now := start
		rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("ip"))
		assert.False(t, rl.Allow("ip"))
		now = now.Add(time.Second)
		assert.True(t, rl.Allow("ip"))
	})

	t.Run("disabled allows everything", func(t *testing.T) {
		rl := frozenLimiter(config.RateLimitConfig{Enabled: false, RequestsPerMin: 1, Burst: 1}, start)
		for i := 0; i < 10; i++ {
			assert.True(t, rl.Allow("ip"))
		}
	})

	t.Run("idle buckets are pruned", func(t *testing.T) {
		now := start
		rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60})
		rl.now = func() time.Time { return now }

		rl.Allow("old")
		now = now.Add(2 * time.Hour)
		rl.Allow("fresh")

		assert.Equal(t, 1, rl.CleanupOldBuckets(time.Hour))
		assert.Len(t, rl.buckets, 1)
		assert.Contains(t, rl.buckets, "fresh")
	})
}
