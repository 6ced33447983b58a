package repository

import (
	"context"
	"time"

	"todaride/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate if the passenger
	// already has an active ride in the tenant.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetByIDForUpdate retrieves a ride by ID and locks it until the
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// GetActiveByPassenger returns the passenger's non-terminal ride.
	GetActiveByPassenger(ctx context.Context, tenantID, passengerID string) (*domain.Ride, error)

	// ListSearching returns unassigned searching rides of the tenant,
	// oldest first.
	ListSearching(ctx context.Context, tenantID string) ([]*domain.Ride, error)

	// BusyDriverIDs returns drivers holding an active ride in the tenant.
	BusyDriverIDs(ctx context.Context, tenantID string) ([]string, error)

	// Claim assigns driverID to a ride that is still searching and
	// unassigned, provided the driver holds no other active ride.
	// Reports whether the row was claimed.
	Claim(ctx context.Context, claim RideClaim) (bool, error)

	// UpdateStatus writes the lifecycle fields of ride if its stored
	// status is still from. Reports whether the row was updated.
	UpdateStatus(ctx context.Context, ride *domain.Ride, from domain.RideStatus) (bool, error)
}

// RideClaim holds the parameters of a conditional driver assignment.
type RideClaim struct {
	RideID    string
	TenantID  string
	DriverID  string
	DriverLat *float64
	DriverLng *float64
	At        time.Time
}
