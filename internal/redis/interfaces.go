package redis

import (
	"context"

	"todaride/internal/events"
)

// LocationFinder defines the nearby-driver lookup used by map views.
type LocationFinder interface {
	FindNearbyDrivers(ctx context.Context, tenantID string, lat, lng, radiusKm float64) ([]DriverLocation, error)
}

// Ensure concrete types implement interfaces.
var (
	_ LocationFinder   = (*LocationIndex)(nil)
	_ events.Publisher = (*LocationIndex)(nil)
	_ events.Publisher = (*EventPublisher)(nil)
)
