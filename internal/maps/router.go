// Package maps resolves driving routes between pickup and dropoff points.
package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"googlemaps.github.io/maps"

	"todaride/internal/domain"
)

type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleRouter resolves routes with the Google Maps Directions API.
type GoogleRouter struct {
	client  directionsClient
	timeout time.Duration
}

// NewGoogleRouter creates a router with the given API key.
func NewGoogleRouter(apiKey string, timeout time.Duration) (*GoogleRouter, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleRouter{client: client, timeout: timeout}, nil
}

// Route returns distance, duration and geometry of the first driving route.
func (g *GoogleRouter) Route(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Route, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	routes, _, err := g.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(pickup),
		Destination: latLng(dropoff),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return domain.Route{}, fmt.Errorf("%w: %v", domain.ErrRoutingUnavailable, err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return domain.Route{}, domain.ErrRoutingEmpty
	}

	leg := routes[0].Legs[0]
	route := domain.Route{
		DistanceKm:  float64(leg.Distance.Meters) / 1000,
		DurationMin: int(math.Round(leg.Duration.Minutes())),
	}

	points, err := routes[0].OverviewPolyline.Decode()
	if err == nil && len(points) > 0 {
		route.Geometry = make([]domain.Coordinate, len(points))
		for i, p := range points {
			route.Geometry[i] = domain.Coordinate{Lat: p.Lat, Lng: p.Lng}
		}
	} else {
		route.Geometry = []domain.Coordinate{pickup, dropoff}
	}

	return route, nil
}

func latLng(c domain.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

// HaversineRouter estimates routes from straight-line distance. It is used
// when no routing provider is configured.
type HaversineRouter struct {
	DetourFactor float64
	SpeedKmh     float64
}

// NewHaversineRouter creates a router with urban tricycle defaults.
func NewHaversineRouter() *HaversineRouter {
	return &HaversineRouter{DetourFactor: 1.3, SpeedKmh: 20}
}

// Route returns the straight-line estimate between the two points.
func (h *HaversineRouter) Route(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Route, error) {
	km := domain.HaversineKm(pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng) * h.DetourFactor
	km = math.Round(km*100) / 100

	minutes := 0
	if h.SpeedKmh > 0 {
		minutes = int(math.Ceil(km / h.SpeedKmh * 60))
	}

	return domain.Route{
		DistanceKm:  km,
		DurationMin: minutes,
		Geometry:    []domain.Coordinate{pickup, dropoff},
	}, nil
}
