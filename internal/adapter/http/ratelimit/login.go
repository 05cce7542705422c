package ratelimit

import (
	"context"
	"sync"
	"time"
)

type attemptRecord struct {
	count        int
	lastAttempt  time.Time
	blockedUntil time.Time
}

// LoginRateLimiter allows maxAttempts login attempts per client inside a
// sliding window, then blocks the client for blockDuration.
type LoginRateLimiter struct {
	mu             sync.Mutex
	attempts       map[string]*attemptRecord
	maxAttempts    int
	windowDuration time.Duration
	blockDuration  time.Duration
	now            func() time.Time
}

func NewLoginRateLimiter(maxAttempts int, windowDuration, blockDuration time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{
		attempts:       make(map[string]*attemptRecord),
		maxAttempts:    maxAttempts,
		windowDuration: windowDuration,
		blockDuration:  blockDuration,
		now:            time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *LoginRateLimiter) WithClock(now func() time.Time) *LoginRateLimiter {
	r.now = now
	return r
}

// Check counts an attempt and reports whether it may proceed. When it may
// not, the remaining block time is returned.
func (r *LoginRateLimiter) Check(clientID string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, ok := r.attempts[clientID]
	if !ok {
		record = &attemptRecord{lastAttempt: now}
		r.attempts[clientID] = record
	}

	if now.Before(record.blockedUntil) {
		return false, record.blockedUntil.Sub(now)
	}

	if now.Sub(record.lastAttempt) > r.windowDuration {
		record.count = 0
	}
	record.count++
	record.lastAttempt = now

	if record.count > r.maxAttempts {
		record.blockedUntil = now.Add(r.blockDuration)
		return false, r.blockDuration
	}
	return true, 0
}

func (r *LoginRateLimiter) Reset(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, clientID)
}

// Prune drops records that are idle and unblocked, returning how many were removed.
func (r *LoginRateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for clientID, record := range r.attempts {
		if now.Sub(record.lastAttempt) > r.windowDuration*2 && now.After(record.blockedUntil) {
			delete(r.attempts, clientID)
			removed++
		}
	}
	return removed
}

// Start prunes once a minute until ctx is done.
func (r *LoginRateLimiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Prune()
			}
		}
	}()
}

func (r *LoginRateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
