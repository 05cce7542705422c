package ratelimit

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff computes exponentially growing delays capped at Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

func NewBackoff(min, max time.Duration, factor float64) *Backoff {
	return &Backoff{Min: min, Max: max, Factor: factor, Jitter: true}
}

// Duration returns the delay before retry number attempt (1-based). With
// Jitter the result falls in [d/2, d].
func (b *Backoff) Duration(attempt int) time.Duration {
	if attempt <= 0 {
		return b.Min
	}

	d := float64(b.Min) * math.Pow(b.Factor, float64(attempt-1))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// FailureDelay slows down repeated failed logins from the same client. The
// delay grows with the number of consecutive failures and resets on success.
type FailureDelay struct {
	mu       sync.Mutex
	backoff  *Backoff
	failures map[string]int
}

func NewFailureDelay(b *Backoff) *FailureDelay {
	return &FailureDelay{backoff: b, failures: make(map[string]int)}
}

// RecordFailure counts a failure and returns how long to wait before answering.
func (f *FailureDelay) RecordFailure(clientID string) time.Duration {
	f.mu.Lock()
	f.failures[clientID]++
	n := f.failures[clientID]
	f.mu.Unlock()
	return f.backoff.Duration(n)
}

func (f *FailureDelay) RecordSuccess(clientID string) {
	f.mu.Lock()
	delete(f.failures, clientID)
	f.mu.Unlock()
}

func (f *FailureDelay) Failures(clientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[clientID]
}
