package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count   int
	expires time.Time
}

// MemoryLimiter keeps counters in process. Suitable for a single instance.
type MemoryLimiter struct {
	mu          sync.Mutex
	counters    map[string]bucket
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewMemory returns a limiter allowing maxAttempts failures per window.
func NewMemory(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counters:    make(map[string]bucket),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.live(keyFor(username))
	if ok && w.count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (l *MemoryLimiter) Failure(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := keyFor(username)
	w, ok := l.live(key)
	if !ok {
		w = bucket{expires: l.now().Add(l.window)}
	}
	w.count++
	l.counters[key] = w
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, keyFor(username))
	return nil
}

// live returns the counter for key, dropping it if its window has closed. Caller holds mu.
func (l *MemoryLimiter) live(key string) (bucket, bool) {
	w, ok := l.counters[key]
	if !ok {
		return bucket{}, false
	}
	if !l.now().Before(w.expires) {
		delete(l.counters, key)
		return bucket{}, false
	}
	return w, true
}

// Sweep drops every counter whose window has closed and returns how many were dropped.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, w := range l.counters {
		if !now.Before(w.expires) {
			delete(l.counters, key)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep()
			if onSweep != nil {
				onSweep(removed, l.Len())
			}
		}
	}
}

// Len returns the number of tracked usernames.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
