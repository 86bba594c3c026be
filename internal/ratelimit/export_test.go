package ratelimit

import "time"

func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
