package domain

import "time"

// EventType names a domain event.
type EventType string

const (
	EventRideUpdated        EventType = "ride.updated"
	EventPresenceUpdated    EventType = "presence.updated"
	EventReservationUpdated EventType = "reservation.updated"
	EventTerminalUpdated    EventType = "terminal.updated"
)

// Event is a tenant-scoped notification of a committed change.
type Event struct {
	Type       EventType `json:"type"`
	TenantID   string    `json:"tenant_id"`
	EntityID   string    `json:"entity_id"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}
