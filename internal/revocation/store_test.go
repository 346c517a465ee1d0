package revocation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(now *time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.nowF = func() time.Time { return *now }
	return s
}

func TestMemoryStore_RevokeAndIsRevoked(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("IsRevoked before Revoke = %v, %v; want false, nil", revoked, err)
	}
	first, err := s.Revoke(ctx, "jti-1", now.Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("Revoke = %v, %v; want true, nil", first, err)
	}
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); !revoked {
		t.Error("IsRevoked after Revoke = false, want true")
	}
	if revoked, _ := s.IsRevoked(ctx, "jti-2"); revoked {
		t.Error("IsRevoked for other id = true, want false")
	}
}

func TestMemoryStore_RevokeIsIdempotent(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	ctx := context.Background()

	first, _ := s.Revoke(ctx, "jti-1", now.Add(time.Hour))
	second, err := s.Revoke(ctx, "jti-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if !first || second {
		t.Errorf("Revoke twice = %v, %v; want true, false", first, second)
	}
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); !revoked {
		t.Error("IsRevoked after double Revoke = false, want true")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStore_KeepsEntryUntilPastGrace(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	ctx := context.Background()
	exp := now.Add(time.Minute)
	_, _ = s.Revoke(ctx, "jti-1", exp)

	now = exp.Add(DefaultGrace)
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); !revoked {
		t.Error("entry should survive until expiry plus grace")
	}

	now = exp.Add(DefaultGrace + time.Second)
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); revoked {
		t.Error("entry past expiry plus grace should be evicted")
	}
	if s.Len() != 0 {
		t.Errorf("Len after lazy eviction = %d, want 0", s.Len())
	}
}

func TestMemoryStore_ZeroExpiryNeverEvicted(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	ctx := context.Background()
	_, _ = s.Revoke(ctx, "forever", time.Time{})

	now = now.Add(24 * 365 * time.Hour)
	if n := s.Sweep(); n != 0 {
		t.Errorf("Sweep removed %d, want 0", n)
	}
	if revoked, _ := s.IsRevoked(ctx, "forever"); !revoked {
		t.Error("zero-expiry entry should stay revoked")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	ctx := context.Background()
	_, _ = s.Revoke(ctx, "short", now.Add(time.Minute))
	_, _ = s.Revoke(ctx, "long", now.Add(time.Hour))

	now = now.Add(10 * time.Minute)
	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if revoked, _ := s.IsRevoked(ctx, "long"); !revoked {
		t.Error("unexpired entry should remain revoked")
	}
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Revoke(context.Background(), "old", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	var sweeps atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond, func(removed, remaining int) { sweeps.Add(1) })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sweeps.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run did not sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Len() != 0 {
		t.Errorf("Len after sweep = %d, want 0", s.Len())
	}
}

func TestMemoryStore_ConcurrentRevokeSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if first, _ := s.Revoke(ctx, "contested", exp); first {
				wins.Add(1)
			}
			_, _ = s.IsRevoked(ctx, "contested")
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", wins.Load())
	}
}
