package telemetry

import "time"

// EventType names an authentication lifecycle event.
type EventType string

const (
	EventLogin          EventType = "auth.login"
	EventRefresh        EventType = "auth.refresh"
	EventLogout         EventType = "auth.logout"
	EventGuardDenied    EventType = "auth.guard_denied"
	EventResolveFailure EventType = "auth.resolve_rejected"
)

// Outcomes attached to events and metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuthEvent is one auditable authentication or authorization decision. It never carries
// tokens or passwords.
type AuthEvent struct {
	Type       EventType `json:"type"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
