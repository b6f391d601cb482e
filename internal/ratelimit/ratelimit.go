// Package ratelimit provides the token bucket shared by all requests issued
// through one API client instance.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Bucket is a token-bucket rate limiter. Tokens replenish continuously at
// rate tokens per second up to burst. Acquire never fails, it only delays.
type Bucket struct {
	mu     sync.Mutex
	tokens float64
	rate   float64
	burst  float64
	last   time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewBucket returns a bucket starting full at burst tokens.
func NewBucket(rate, burst float64) *Bucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	b := &Bucket{
		tokens: burst,
		rate:   rate,
		burst:  burst,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	b.last = b.now()
	return b
}

// Acquire blocks until at least one token is available, then consumes it.
// The refill-check-decrement sequence runs under the lock; the wait between
// retries does not, so concurrent callers are not starved while one sleeps.
func (b *Bucket) Acquire() {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		b.sleep(time.Duration(float64(time.Second) / b.rate))
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Callers must hold b.mu.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.burst, b.tokens+elapsed*b.rate)
	}
	b.last = now
}

// Tokens reports the token count after crediting elapsed time.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}
