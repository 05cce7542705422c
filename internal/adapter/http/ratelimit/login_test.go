package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(maxAttempts int) (*LoginRateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewLoginRateLimiter(maxAttempts, time.Minute, 5*time.Minute).WithClock(clock.Now), clock
}

func TestLoginRateLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	limiter, clock := newLimiter(3)

	for i := range 3 {
		allowed, wait := limiter.Check("client")
		assert.True(t, allowed, "attempt %d", i+1)
		assert.Zero(t, wait)
	}

	allowed, wait := limiter.Check("client")
	assert.False(t, allowed)
	assert.Equal(t, 5*time.Minute, wait)

	clock.Advance(2 * time.Minute)
	allowed, wait = limiter.Check("client")
	assert.False(t, allowed)
	assert.Equal(t, 3*time.Minute, wait)

	allowed, _ = limiter.Check("other")
	assert.True(t, allowed, "other clients unaffected")
}

func TestLoginRateLimiter_BlockExpires(t *testing.T) {
	limiter, clock := newLimiter(1)

	limiter.Check("client")
	allowed, _ := limiter.Check("client")
	assert.False(t, allowed)

	clock.Advance(6 * time.Minute)
	allowed, _ = limiter.Check("client")
	assert.True(t, allowed)
}

func TestLoginRateLimiter_WindowResets(t *testing.T) {
	limiter, clock := newLimiter(2)

	limiter.Check("client")
	limiter.Check("client")
	clock.Advance(2 * time.Minute)

	allowed, _ := limiter.Check("client")
	assert.True(t, allowed)
}

func TestLoginRateLimiter_Reset(t *testing.T) {
	limiter, _ := newLimiter(1)

	limiter.Check("client")
	limiter.Reset("client")
	limiter.Reset("missing")

	allowed, _ := limiter.Check("client")
	assert.True(t, allowed)
}

func TestLoginRateLimiter_Prune(t *testing.T) {
	limiter, clock := newLimiter(1)

	limiter.Check("idle")
	limiter.Check("blocked")
	limiter.Check("blocked")
	clock.Advance(3 * time.Minute)
	limiter.Check("active")

	assert.Equal(t, 1, limiter.Prune(), "only the idle unblocked record goes")
	assert.Equal(t, 2, limiter.tracked())
}

func TestLoginRateLimiter_StartStopsWithContext(t *testing.T) {
	limiter, _ := newLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	limiter.Start(ctx)
	cancel()
}

func TestLoginRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLoginRateLimiter(1000, time.Minute, time.Minute)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range 10 {
				limiter.Check(fmt.Sprintf("client-%d", id%5))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, limiter.tracked())
}
