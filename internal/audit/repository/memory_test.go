package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"digicheese/backend/internal/audit/domain"
)

func seed(t *testing.T, r *MemoryRepository, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		outcome := "success"
		if i%2 == 1 {
			outcome = "failure"
		}
		err := r.Create(context.Background(), &domain.AuditLog{
			ID:         fmt.Sprintf("a-%d", i),
			EventType:  "auth.login",
			Outcome:    outcome,
			SubjectID:  fmt.Sprintf("user-%d", i%3),
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
}

func ids(list []*domain.AuditLog) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestMemoryRepository_List(t *testing.T) {
	r := NewMemoryRepository(0)
	seed(t, r, 6)
	ctx := context.Background()

	testCases := []struct {
		name   string
		filter domain.Filter
		want   string
	}{
		{"newest first", domain.Filter{}, "[a-5 a-4 a-3 a-2 a-1 a-0]"},
		{"limit", domain.Filter{Limit: 2}, "[a-5 a-4]"},
		{"offset", domain.Filter{Limit: 2, Offset: 2}, "[a-3 a-2]"},
		{"subject", domain.Filter{SubjectID: "user-1"}, "[a-4 a-1]"},
		{"outcome", domain.Filter{Outcome: "failure"}, "[a-5 a-3 a-1]"},
		{"no match", domain.Filter{EventType: "auth.logout"}, "[]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if s := fmt.Sprint(ids(got)); s != tc.want {
				t.Errorf("List = %s, want %s", s, tc.want)
			}
		})
	}
}

func TestMemoryRepository_Capacity(t *testing.T) {
	r := NewMemoryRepository(3)
	seed(t, r, 5)
	got, _ := r.List(context.Background(), domain.Filter{})
	if s := fmt.Sprint(ids(got)); s != "[a-4 a-3 a-2]" {
		t.Errorf("List = %s, want [a-4 a-3 a-2]", s)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository(0)
	seed(t, r, 1)
	got, _ := r.List(context.Background(), domain.Filter{})
	got[0].Outcome = "tampered"
	again, _ := r.List(context.Background(), domain.Filter{})
	if again[0].Outcome != "success" {
		t.Errorf("Outcome = %q, want success", again[0].Outcome)
	}
}

func TestRepositories_ImplementInterface(t *testing.T) {
	var _ Repository = (*MemoryRepository)(nil)
	var _ Repository = (*PostgresRepository)(nil)
}
