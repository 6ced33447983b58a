package domain

import "time"

// ReservationStatus represents the state of a terminal reservation.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationArrived   ReservationStatus = "arrived"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// QueuedReservationStatuses are the statuses that hold a queue position.
var QueuedReservationStatuses = []ReservationStatus{ReservationConfirmed, ReservationArrived}

// Queued reports whether the reservation occupies a queue position.
func (s ReservationStatus) Queued() bool {
	for _, q := range QueuedReservationStatuses {
		if s == q {
			return true
		}
	}
	return false
}

// Reservation is a passenger's place in a terminal queue.
type Reservation struct {
	ID            string
	TenantID      string
	PassengerID   string
	TerminalID    string
	BoardingTime  time.Time
	Status        ReservationStatus
	QueuePosition int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompactPositions closes the gap left by removing the reservation at
// removed: every position greater than removed moves up by one.
func CompactPositions(positions []int, removed int) []int {
	out := make([]int, len(positions))
	for i, p := range positions {
		if p > removed {
			p--
		}
		out[i] = p
	}
	return out
}
