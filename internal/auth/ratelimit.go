// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package auth

import (
	"sync"
	"time"
)

// RateLimiter is a TTL throttle keyed by string. A key is allowed once per
// TTL window. Instances are owned by the service that uses them; there is
// no process-global state.
type RateLimiter struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration

	now func() time.Time // test seam
}

// NewRateLimiter creates a RateLimiter with the given window.
func NewRateLimiter(ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Allow reports whether key may act now. Allowing records the attempt and
// starts a fresh window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.seen[key]; ok && now.Sub(last) < rl.ttl {
		return false
	}
	rl.seen[key] = now
	return true
}

// Retry returns how long key must wait before Allow succeeds again.
// Zero means it may act immediately.
func (rl *RateLimiter) Retry(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	last, ok := rl.seen[key]
	if !ok {
		return 0
	}
	remaining := rl.ttl - rl.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep drops expired entries. Call it periodically to bound memory; the
// limiter stays correct without it.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, last := range rl.seen {
		if now.Sub(last) >= rl.ttl {
			delete(rl.seen, key)
		}
	}
}

// SweepEvery sweeps on a ticker until stop is closed.
func (rl *RateLimiter) SweepEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-stop:
			return
		}
	}
}
