// Package ratelimit provides a sliding-window per-IP limiter used to guard
// the WebSocket upgrade endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// IPLimiter allows up to max events per IP within a sliding window.
type IPLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	max     int
	window  time.Duration
}

// NewIPLimiter creates a limiter allowing max events per window.
func NewIPLimiter(max int, window time.Duration) *IPLimiter {
	return &IPLimiter{
		history: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow reports whether the IP is under its limit and records the event
// when it is.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := l.prune(ip, now)

	if len(recent) >= l.max {
		l.history[ip] = recent
		return false
	}

	l.history[ip] = append(recent, now)
	return true
}

// prune drops events that fell out of the window. Must be called with the
// lock held. Empty entries are removed so the map doesn't grow with every
// IP ever seen.
func (l *IPLimiter) prune(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.history[ip][:0]
	for _, t := range l.history[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.history, ip)
	}
	return recent
}
