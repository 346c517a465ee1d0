package repository

import (
	"context"
	"slices"
	"sync"

	"digicheese/backend/internal/audit/domain"
)

// MemoryRepository keeps the most recent entries in memory, dropping the oldest beyond capacity.
type MemoryRepository struct {
	mu       sync.RWMutex
	entries  []*domain.AuditLog
	capacity int
}

// NewMemoryRepository returns a repository holding at most capacity entries (10000 when capacity <= 0).
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryRepository{capacity: capacity}
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	cp := *a
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &cp)
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = slices.Delete(r.entries, 0, over)
	}
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	f = f.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AuditLog, 0)
	skipped := 0
	for i := len(r.entries) - 1; i >= 0 && len(out) < f.Limit; i-- {
		a := r.entries[i]
		if !f.Matches(a) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
