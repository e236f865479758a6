package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval and is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a limiter allowing at most one action per interval.
// A non-positive interval allows every action.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether an action may run now and records it if so.
// When denied, the remaining wait is returned.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if wait := l.waitLocked(now); wait > 0 {
		return false, wait
	}
	l.lastAllowed = now
	return true, 0
}

// Wait returns how long until the next action would be allowed, without
// recording anything.
func (l *Limiter) Wait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitLocked(l.now())
}

func (l *Limiter) waitLocked(now time.Time) time.Duration {
	if l.lastAllowed.IsZero() {
		return 0
	}
	if since := now.Sub(l.lastAllowed); since < l.interval {
		return l.interval - since
	}
	return 0
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
