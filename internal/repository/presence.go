package repository

import (
	"context"
	"time"

	"todaride/internal/domain"
)

// PresenceRepository defines the persistence operations for driver presence.
type PresenceRepository interface {
	// Get retrieves the presence record of a driver.
	Get(ctx context.Context, driverID string) (*domain.DriverPresence, error)

	// GetForUpdate retrieves the presence record of a driver and locks it
	// until the transaction ends.
	GetForUpdate(ctx context.Context, driverID string) (*domain.DriverPresence, error)

	// Upsert creates or replaces the presence record of a driver. An online
	// record is not replaced by another online heartbeat when the stored
	// heartbeat is after debounceSince. Reports whether a row was written.
	Upsert(ctx context.Context, presence *domain.DriverPresence, debounceSince time.Time) (bool, error)

	// ListAvailable returns online drivers of the tenant with known
	// coordinates and a heartbeat at or after since, ordered by driver ID.
	ListAvailable(ctx context.Context, tenantID string, since time.Time) ([]*domain.DriverPresence, error)

	// MarkStaleOffline flips online drivers whose heartbeat is older than
	// before to offline and returns the flipped records.
	MarkStaleOffline(ctx context.Context, before, now time.Time) ([]*domain.DriverPresence, error)
}
