package auth

import (
	"context"
	"math"
	"net"
	"sync"
	"time"
)

const (
	failureWindow   = 5 * time.Minute
	failureMaxFails = 10
	failureMaxIPs   = 10000 // max tracked IPs to prevent memory exhaustion
)

// FailureLimiter tracks failed credential attempts per client IP to slow
// down key guessing.
type FailureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

// NewFailureLimiter creates an empty limiter using the wall clock.
func NewFailureLimiter() *FailureLimiter {
	return &FailureLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

// Run prunes stale entries every interval until ctx is done.
func (l *FailureLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Prune drops failures older than the window and forgets clean IPs.
func (l *FailureLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-failureWindow)
	for ip, times := range l.failures {
		filtered := recentSince(times, cutoff)
		if len(filtered) == 0 {
			delete(l.failures, ip)
		} else {
			l.failures[ip] = filtered
		}
	}
}

// Allow reports whether remoteAddr may attempt authentication. When it may
// not, the returned duration is how long until its oldest failure ages out.
func (l *FailureLimiter) Allow(remoteAddr string) (bool, time.Duration) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	filtered := recentSince(l.failures[host], now.Add(-failureWindow))
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true, 0
	}
	l.failures[host] = filtered
	if len(filtered) < failureMaxFails {
		return true, 0
	}
	return false, filtered[0].Add(failureWindow).Sub(now)
}

// RecordFailure notes a failed attempt from remoteAddr.
func (l *FailureLimiter) RecordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Evict the stalest IP rather than grow without bound.
	if _, exists := l.failures[host]; !exists && len(l.failures) >= failureMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], l.now())
}

// Tracked returns the number of IPs with recorded failures.
func (l *FailureLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

func recentSince(times []time.Time, cutoff time.Time) []time.Time {
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}
	return host
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
