package fetch

import "sync"

// Breaker is a consecutive-failure circuit breaker. Each failure increments
// the counter, each success decrements it (never below zero); the circuit
// is open while the counter is at or above the threshold. Opening is
// temporary by construction: the next success after a post-open attempt
// starts closing it again.
type Breaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
}

// NewBreaker builds a Breaker with the given threshold.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{threshold: threshold}
}

// Failure records one failed attempt.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

// Success records one successful attempt.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
	}
}

// Open reports whether the circuit is open.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold
}
