package ratelimiter

import (
	"sync"
	"time"
)

// WindowLimiter counts events per key in fixed windows. The relay uses it to
// cap how many messages a single connection may send.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewWindowLimiter(limit int, size time.Duration) *WindowLimiter {
	return &WindowLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
		now:     time.Now,
	}
}

// Allow records one event for key. When the window is exhausted it reports
// how long until the next one opens.
func (l *WindowLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Truncate(l.size).Add(l.size)}
		return true, 0
	}

	if w.count >= l.limit {
		return false, w.resetAt.Sub(now)
	}

	w.count++
	return true, 0
}

// Forget drops the state for key, e.g. when its connection closes.
func (l *WindowLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}
