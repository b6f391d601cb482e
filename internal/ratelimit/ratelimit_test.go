package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests control elapsed time; sleep advances the clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBucket(rate, burst float64) (*Bucket, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewBucket(rate, burst)
	b.now = clock.Now
	b.sleep = clock.Sleep
	b.last = clock.Now()
	return b, clock
}

func TestAcquireConsumesTokens(t *testing.T) {
	b, _ := newTestBucket(10, 10)

	if got := b.Tokens(); got != 10 {
		t.Fatalf("expected full bucket, got %v", got)
	}
	for i := 0; i < 4; i++ {
		b.Acquire()
	}
	if got := b.Tokens(); got != 6 {
		t.Fatalf("expected 6 tokens after 4 acquires, got %v", got)
	}
}

func TestAcquireBeyondBurstBlocksUntilReplenished(t *testing.T) {
	b, clock := newTestBucket(10, 3)

	start := clock.Now()
	for i := 0; i < 5; i++ {
		b.Acquire()
	}
	// Two acquires beyond the burst each wait for one token at 10/s.
	waited := clock.Now().Sub(start)
	if waited < 200*time.Millisecond {
		t.Fatalf("expected at least 200ms of simulated waiting, got %v", waited)
	}
	if got := b.Tokens(); got >= 1 {
		t.Fatalf("expected bucket nearly empty, got %v", got)
	}
}

func TestReplenishmentCappedAtBurst(t *testing.T) {
	b, clock := newTestBucket(10, 5)

	for i := 0; i < 5; i++ {
		b.Acquire()
	}
	// A long idle period must not accumulate beyond the burst.
	clock.Sleep(time.Hour)
	if got := b.Tokens(); got != 5 {
		t.Fatalf("expected tokens capped at burst, got %v", got)
	}
}

func TestConcurrentAcquires(t *testing.T) {
	// Replenishment is negligible at this rate, so the count stays observable.
	b := NewBucket(0.001, 10)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Acquire()
		}()
	}
	wg.Wait()

	if got := b.Tokens(); got < 4.9 || got > 5.1 {
		t.Fatalf("expected roughly 5 tokens after 5 concurrent acquires, got %v", got)
	}
}
