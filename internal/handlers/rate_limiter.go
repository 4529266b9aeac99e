package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	// Allow records a request for key. When it refuses, retryAfter is the time left until the
	// key's window resets.
	Allow(key string) (ok bool, retryAfter time.Duration)
}

// windowLimiter counts requests per key in fixed windows that start on a key's first request.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*keyWindow
	nextSweep time.Time
}

type keyWindow struct {
	started time.Time
	count   int
}

func newWindowLimiter(limit int, window time.Duration, now func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &windowLimiter{limit: limit, window: window, now: now, windows: map[string]*keyWindow{}}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	w := l.windows[key]
	if w == nil || now.Sub(w.started) >= l.window {
		l.windows[key] = &keyWindow{started: now, count: 1}
		return true, 0
	}
	if w.count >= l.limit {
		return false, w.started.Add(l.window).Sub(now)
	}
	w.count++
	return true, 0
}

// sweep drops expired windows at most once per window length.
func (l *windowLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.started) >= l.window {
			delete(l.windows, key)
		}
	}
	l.nextSweep = now.Add(l.window)
}

// clientKey is the caller's IP. middleware.RealIP has already applied forwarding headers.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
