package repository

import (
	"context"
	"time"

	"todaride/internal/domain"
)

// ReservationRepository defines the persistence operations for terminal reservations.
type ReservationRepository interface {
	// Create persists a new reservation. Returns ErrDuplicate if the
	// passenger already holds a non-terminal reservation at the terminal.
	Create(ctx context.Context, reservation *domain.Reservation) error

	// GetByID retrieves a reservation by ID.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// GetByIDForUpdate retrieves a reservation by ID and locks it.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Reservation, error)

	// GetActive returns the passenger's queued reservation at the terminal.
	GetActive(ctx context.Context, terminalID, passengerID string) (*domain.Reservation, error)

	// MaxQueuedPosition returns the highest position held by a queued
	// reservation at the terminal, or 0 when the queue is empty.
	MaxQueuedPosition(ctx context.Context, terminalID string) (int, error)

	// NextConfirmed returns the lowest-position confirmed reservation.
	NextConfirmed(ctx context.Context, terminalID string) (*domain.Reservation, error)

	// ListQueued returns queued reservations ordered by position.
	ListQueued(ctx context.Context, terminalID string) ([]*domain.Reservation, error)

	// UpdateStatus moves a reservation from one status to another.
	// Reports whether the row was updated.
	UpdateStatus(ctx context.Context, id string, from, to domain.ReservationStatus, now time.Time) (bool, error)

	// CompactAfter decrements the position of every queued reservation at
	// the terminal holding a position greater than position.
	CompactAfter(ctx context.Context, terminalID string, position int, now time.Time) (int64, error)
}
