package domain

import "time"

// AuditLog is one persisted authentication or authorization event.
type AuditLog struct {
	ID         string
	EventType  string
	Outcome    string
	Reason     string
	SubjectID  string
	Username   string
	ClientIP   string
	RequestID  string
	OccurredAt time.Time
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	SubjectID string
	EventType string
	Outcome   string
	Limit     int
	Offset    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps Limit into [1, MaxListLimit] and Offset to be non-negative.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether a satisfies the non-empty fields of f.
func (f Filter) Matches(a *AuditLog) bool {
	return (f.SubjectID == "" || f.SubjectID == a.SubjectID) &&
		(f.EventType == "" || f.EventType == a.EventType) &&
		(f.Outcome == "" || f.Outcome == a.Outcome)
}
