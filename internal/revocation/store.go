// Package revocation tracks revoked session token ids for the life of the process.
package revocation

import (
	"context"
	"sync"
	"time"
)

// DefaultGrace is how long an entry outlives its token's expiry before it may be evicted.
const DefaultGrace = time.Minute

// Store records revoked token ids.
type Store interface {
	// Revoke marks id as revoked until at least expiresAt. It is idempotent; first reports
	// whether this call made the transition, so concurrent callers can use it as test-and-set.
	// A zero expiresAt keeps the entry for the life of the store.
	Revoke(ctx context.Context, id string, expiresAt time.Time) (first bool, err error)
	// IsRevoked reports whether id has been revoked.
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// MemoryStore is a concurrency-safe in-memory Store. Entries are dropped once their token
// has been expired for longer than the grace period; by then the codec already rejects the
// token, so eviction never makes a revoked token usable again.
type MemoryStore struct {
	mu    sync.RWMutex
	m     map[string]time.Time
	grace time.Duration
	nowF  func() time.Time
}

// NewMemoryStore returns an empty store using DefaultGrace and the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:     make(map[string]time.Time),
		grace: DefaultGrace,
		nowF:  time.Now,
	}
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; ok {
		return false, nil
	}
	s.m[id] = expiresAt
	return true, nil
}

// IsRevoked implements Store.
func (s *MemoryStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	exp, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if s.evictable(exp, s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[id]; still && s.evictable(cur, s.nowF()) {
			delete(s.m, id)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Sweep removes every evictable entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, exp := range s.m {
		if s.evictable(exp, now) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep()
			if onSweep != nil {
				onSweep(removed, s.Len())
			}
		}
	}
}

// Len returns the number of tracked ids.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MemoryStore) evictable(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt.Add(s.grace))
}
