package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket throttling chat lines from one connection.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

// newRateLimiter returns nil when capacity is not positive; a nil limiter
// allows everything.
func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	rl := &rateLimiter{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		rate:     float64(capacity) / interval.Seconds(),
		now:      time.Now,
	}
	rl.lastCheck = rl.now()
	return rl
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
