package domain

import "time"

// EventType identifies an engine event. Events represent facts that have
// occurred, not commands.
type EventType string

const (
	// EventStageChanged records a deal stage transition.
	EventStageChanged EventType = "deal.stage_changed"
	// EventNudgeRequested records a stall or inactivity nudge dispatch.
	EventNudgeRequested EventType = "nudge.requested"
	// EventRoundResolved records a negotiation round resolution.
	EventRoundResolved EventType = "negotiation.round_resolved"
	// EventComplianceItemStatusChanged records a checklist item moving
	// forward.
	EventComplianceItemStatusChanged EventType = "compliance.item_status_changed"
)

// Event is emitted after the local write commits. Delivery is at-least-once;
// consumers de-duplicate by ID.
type Event struct {
	ID         string
	Type       EventType
	DealID     string
	OccurredAt time.Time
	// Fields carries event-specific details (stages, round numbers, item
	// ids) for audit consumers.
	Fields map[string]string
}
