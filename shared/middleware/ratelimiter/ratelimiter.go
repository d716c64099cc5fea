// Package ratelimiter keeps one token bucket per key (client id or IP).
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ninechan-dev/ninechan/shared/logger"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter manages rate limiting for many keys.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// New allows perSecond events per key with the given burst. Keys idle for
// longer than idle are dropped by Cleanup.
func New(perSecond float64, burst int, idle time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

// Allow checks if an event for key may happen now.
func (k *KeyedLimiter) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	e, ok := k.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.rate, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Cleanup drops limiters idle for longer than the configured duration.
func (k *KeyedLimiter) Cleanup() int {
	cutoff := k.now().Add(-k.idle)

	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	for key, e := range k.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (k *KeyedLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := k.Cleanup(); n > 0 {
					logger.Log.Debug("rate limiter cleanup", "removed", n, "active", k.Len())
				}
			}
		}
	}()
}
