package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers decisions with regulatory weight: a record
	// becoming (or ceasing to be) the golden version, or being blocked.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused actions worth alerting on.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine pipeline movement.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	Subject    string        `json:"subject"` // record the event is about
	Action     string        `json:"action"`
	ActorID    string        `json:"actor_id,omitempty"`
	ActorRole  string        `json:"actor_role,omitempty"`
	FromStatus string        `json:"from_status,omitempty"`
	ToStatus   string        `json:"to_status,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Related    string        `json:"related,omitempty"` // golden source, shadow, or colliding record
	RequestID  string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventRequestCreated      AuditEvent = "request_created"
	EventRequestIngested     AuditEvent = "request_ingested"
	EventProfileUpdated      AuditEvent = "request_profile_updated"
	EventRequestSubmitted    AuditEvent = "request_submitted"
	EventRequestApproved     AuditEvent = "request_approved"
	EventRequestRejected     AuditEvent = "request_rejected"
	EventRequestActivated    AuditEvent = "request_activated"
	EventRequestBlocked      AuditEvent = "request_blocked"
	EventGoldenSuperseded    AuditEvent = "golden_superseded"
	EventGoldenEditStarted   AuditEvent = "golden_edit_started"
	EventSubmissionDuplicate AuditEvent = "submission_blocked_duplicate"
	EventTransitionForbidden AuditEvent = "transition_forbidden"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRequestActivated: CategoryCompliance,
	EventRequestBlocked:   CategoryCompliance,
	EventGoldenSuperseded: CategoryCompliance,

	EventSubmissionDuplicate: CategorySecurity,
	EventTransitionForbidden: CategorySecurity,

	EventRequestCreated:    CategoryOperations,
	EventRequestIngested:   CategoryOperations,
	EventProfileUpdated:    CategoryOperations,
	EventRequestSubmitted:  CategoryOperations,
	EventRequestApproved:   CategoryOperations,
	EventRequestRejected:   CategoryOperations,
	EventGoldenEditStarted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Publisher forwards events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// OutboxEntry is a persisted event awaiting delivery to a Publisher.
type OutboxEntry struct {
	ID    uuid.UUID
	Event Event
}
