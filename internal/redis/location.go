package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"todaride/internal/domain"
	"todaride/internal/events"
)

// DriverLocation represents a driver's position.
type DriverLocation struct {
	DriverID   string
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// LocationIndex mirrors online driver positions into a per-tenant GEO set
// for map views. Dispatch never reads it; the relational store stays the
// authority for matching.
type LocationIndex struct {
	client *redis.Client
}

// NewLocationIndex creates a new LocationIndex.
func NewLocationIndex(client *redis.Client) *LocationIndex {
	return &LocationIndex{client: client}
}

func locationKey(tenantID string) string {
	return fmt.Sprintf("presence:%s:online", tenantID)
}

// Publish consumes presence.updated events. Other event types are ignored.
func (s *LocationIndex) Publish(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventPresenceUpdated {
		return nil
	}
	p, ok := event.Payload.(events.PresencePayload)
	if !ok {
		return nil
	}

	if p.IsOnline && p.Lat != nil && p.Lng != nil {
		return s.UpdateLocation(ctx, event.TenantID, p.DriverID, *p.Lat, *p.Lng)
	}
	return s.RemoveLocation(ctx, event.TenantID, p.DriverID)
}

// UpdateLocation stores a driver's location using GEOADD.
func (s *LocationIndex) UpdateLocation(ctx context.Context, tenantID, driverID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, locationKey(tenantID), &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// RemoveLocation drops a driver from the index.
func (s *LocationIndex) RemoveLocation(ctx context.Context, tenantID, driverID string) error {
	return s.client.ZRem(ctx, locationKey(tenantID), driverID).Err()
}

// FindNearbyDrivers returns indexed drivers within radiusKm, nearest first.
func (s *LocationIndex) FindNearbyDrivers(ctx context.Context, tenantID string, lat, lng, radiusKm float64) ([]DriverLocation, error) {
	results, err := s.client.GeoRadius(ctx, locationKey(tenantID), lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]DriverLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, DriverLocation{
			DriverID:   r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}

	return locations, nil
}
