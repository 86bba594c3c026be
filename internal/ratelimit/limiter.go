// Package ratelimit implements domain.RateLimiter in-process with token
// buckets from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const sweepInterval = time.Minute

type bucket struct {
	lim      *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// Limiter keeps one token bucket per key. A bucket for limit requests per
// window refills at limit/window and bursts up to limit. A bucket left idle
// for a whole window is full again, so it is dropped and recreated on demand.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time

	// waitLimit and waitWindow configure buckets first created by Wait.
	waitLimit  int
	waitWindow time.Duration
}

// New creates a Limiter. Wait uses one request per second per key.
func New() *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		now:        time.Now,
		waitLimit:  1,
		waitWindow: time.Second,
	}
}

func (l *Limiter) bucket(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		if limit < 1 {
			limit = 1
		}
		if window <= 0 {
			window = time.Second
		}
		b = &bucket{
			lim:    rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
			window: window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// sweep drops every bucket idle for at least its window. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= b.window {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Allow reports whether one more request for key fits in the bucket, and
// takes a token if so.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	return l.bucket(key, limit, window, now).AllowN(now, 1), nil
}

// Wait blocks until key's bucket has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.bucket(key, l.waitLimit, l.waitWindow, l.now()).Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: wait %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*Limiter)(nil)
