package events

import (
	"time"

	"todaride/internal/domain"
)

// RidePayload is the wire form of a ride in ride.updated events.
type RidePayload struct {
	ID                   string            `json:"id"`
	TenantID             string            `json:"tenant_id"`
	PassengerID          string            `json:"passenger_id"`
	DriverID             string            `json:"driver_id,omitempty"`
	Status               domain.RideStatus `json:"status"`
	RideType             domain.RideType   `json:"ride_type"`
	Fare                 float64           `json:"fare"`
	DistanceKm           float64           `json:"distance_km"`
	EstimatedDurationMin int               `json:"estimated_duration_min"`
	ActualDurationMin    *int              `json:"actual_duration_min,omitempty"`
	DriverLat            *float64          `json:"driver_lat,omitempty"`
	DriverLng            *float64          `json:"driver_lng,omitempty"`
	CancelledBy          domain.Role       `json:"cancelled_by,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// PresencePayload is the wire form of a presence record.
type PresencePayload struct {
	DriverID        string    `json:"driver_id"`
	IsOnline        bool      `json:"is_online"`
	Lat             *float64  `json:"lat,omitempty"`
	Lng             *float64  `json:"lng,omitempty"`
	Heading         *float64  `json:"heading,omitempty"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// ReservationPayload is the wire form of a reservation.
type ReservationPayload struct {
	ID            string                   `json:"id"`
	PassengerID   string                   `json:"passenger_id"`
	TerminalID    string                   `json:"terminal_id"`
	Status        domain.ReservationStatus `json:"status"`
	QueuePosition int                      `json:"queue_position"`
}

// TerminalPayload is the wire form of a terminal's queue counter.
type TerminalPayload struct {
	ID            string `json:"id"`
	CurrentQueued int    `json:"current_queued"`
	Capacity      int    `json:"capacity"`
}

// RideUpdated builds a ride.updated event.
func RideUpdated(r *domain.Ride, at time.Time) domain.Event {
	return domain.Event{
		Type:     domain.EventRideUpdated,
		TenantID: r.TenantID,
		EntityID: r.ID,
		Payload: RidePayload{
			ID:                   r.ID,
			TenantID:             r.TenantID,
			PassengerID:          r.PassengerID,
			DriverID:             r.DriverID,
			Status:               r.Status,
			RideType:             r.RideType,
			Fare:                 r.Fare,
			DistanceKm:           r.DistanceKm,
			EstimatedDurationMin: r.EstimatedDurationMin,
			ActualDurationMin:    r.ActualDurationMin,
			DriverLat:            r.DriverLat,
			DriverLng:            r.DriverLng,
			CancelledBy:          r.CancelledBy,
			UpdatedAt:            r.UpdatedAt,
		},
		OccurredAt: at,
	}
}

// PresenceUpdated builds a presence.updated event.
func PresenceUpdated(p *domain.DriverPresence, at time.Time) domain.Event {
	return domain.Event{
		Type:     domain.EventPresenceUpdated,
		TenantID: p.TenantID,
		EntityID: p.DriverID,
		Payload: PresencePayload{
			DriverID:        p.DriverID,
			IsOnline:        p.IsOnline,
			Lat:             p.Lat,
			Lng:             p.Lng,
			Heading:         p.Heading,
			LastHeartbeatAt: p.LastHeartbeatAt,
		},
		OccurredAt: at,
	}
}

// ReservationUpdated builds a reservation.updated event.
func ReservationUpdated(r *domain.Reservation, at time.Time) domain.Event {
	return domain.Event{
		Type:     domain.EventReservationUpdated,
		TenantID: r.TenantID,
		EntityID: r.ID,
		Payload: ReservationPayload{
			ID:            r.ID,
			PassengerID:   r.PassengerID,
			TerminalID:    r.TerminalID,
			Status:        r.Status,
			QueuePosition: r.QueuePosition,
		},
		OccurredAt: at,
	}
}

// TerminalUpdated builds a terminal.updated event.
func TerminalUpdated(t *domain.Terminal, at time.Time) domain.Event {
	return domain.Event{
		Type:     domain.EventTerminalUpdated,
		TenantID: t.TenantID,
		EntityID: t.ID,
		Payload: TerminalPayload{
			ID:            t.ID,
			CurrentQueued: t.CurrentQueued,
			Capacity:      t.Capacity,
		},
		OccurredAt: at,
	}
}
