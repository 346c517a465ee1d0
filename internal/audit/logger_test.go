package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"digicheese/backend/internal/audit/domain"
	"digicheese/backend/internal/telemetry"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestRecorder_Emit(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo)
	rec.newID = func() string { return "audit-1" }
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := rec.Emit(context.Background(), &telemetry.AuthEvent{
		Type:       telemetry.EventLogin,
		Outcome:    telemetry.OutcomeFailure,
		Reason:     "invalid_credentials",
		SubjectID:  "user-1",
		Username:   "alice",
		ClientIP:   "192.168.1.1",
		RequestID:  "req-1",
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	checks := []struct{ field, got, want string }{
		{"id", entry.ID, "audit-1"},
		{"event_type", entry.EventType, "auth.login"},
		{"outcome", entry.Outcome, telemetry.OutcomeFailure},
		{"reason", entry.Reason, "invalid_credentials"},
		{"subject_id", entry.SubjectID, "user-1"},
		{"username", entry.Username, "alice"},
		{"client_ip", entry.ClientIP, "192.168.1.1"},
		{"request_id", entry.RequestID, "req-1"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if !entry.OccurredAt.Equal(occurred) {
		t.Errorf("occurred_at = %v, want %v", entry.OccurredAt, occurred)
	}
}

func TestRecorder_StampsMissingTime(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	if err := rec.Emit(context.Background(), &telemetry.AuthEvent{Type: telemetry.EventLogout, Outcome: telemetry.OutcomeSuccess}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := repo.entries[0].OccurredAt; !got.Equal(now) {
		t.Errorf("occurred_at = %v, want %v", got, now)
	}
}

func TestRecorder_RepositoryError(t *testing.T) {
	rec := NewRecorder(&mockAuditRepo{createErr: errors.New("database error")})
	err := rec.Emit(context.Background(), &telemetry.AuthEvent{Type: telemetry.EventLogin})
	if err == nil || err.Error() != "database error" {
		t.Errorf("Emit error = %v, want database error", err)
	}
}

func TestRecorder_NilCases(t *testing.T) {
	repo := &mockAuditRepo{}
	if err := NewRecorder(repo).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil) = %v", err)
	}
	if err := NewRecorder(nil).Emit(context.Background(), &telemetry.AuthEvent{}); err != nil {
		t.Errorf("Emit with nil repo = %v", err)
	}
	var rec *Recorder
	if err := rec.Emit(context.Background(), &telemetry.AuthEvent{}); err != nil {
		t.Errorf("nil Recorder Emit = %v", err)
	}
	if len(repo.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(repo.entries))
	}
}

func TestRecorder_IsEventEmitter(t *testing.T) {
	var _ telemetry.EventEmitter = (*Recorder)(nil)
}
