package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxHosts = 10000
)

// authRateLimiter refuses a remote host once it has failed authentication
// authRateMaxFails times inside authRateWindow. Webhook calls and operator
// handshakes share one limiter.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time)}
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// prune drops failures older than the window. Caller holds l.mu.
func (l *authRateLimiter) prune(host string, now time.Time) int {
	cutoff := now.Add(-authRateWindow)
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return 0
	}
	l.failures[host] = kept
	return len(kept)
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prune(hostOf(remoteAddr), time.Now()) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authRateMaxHosts {
		l.evictOldest()
	}
	l.failures[host] = append(l.failures[host], time.Now())
}

// evictOldest forgets the host whose first recorded failure is oldest.
func (l *authRateLimiter) evictOldest() {
	var victim string
	var oldest time.Time
	for host, times := range l.failures {
		if len(times) == 0 {
			continue
		}
		if victim == "" || times[0].Before(oldest) {
			victim, oldest = host, times[0]
		}
	}
	if victim != "" {
		delete(l.failures, victim)
	}
}

// sweep prunes every tracked host each interval until ctx is done.
func (l *authRateLimiter) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for host := range l.failures {
				l.prune(host, now)
			}
			l.mu.Unlock()
		}
	}
}
