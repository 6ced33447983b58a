package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusSearching RideStatus = "searching"
	RideStatusMatched   RideStatus = "matched"
	RideStatusEnRoute   RideStatus = "en_route"
	RideStatusArrived   RideStatus = "arrived"
	RideStatusInTrip    RideStatus = "in_trip"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// ActiveRideStatuses lists every non-terminal status.
var ActiveRideStatuses = []RideStatus{
	RideStatusSearching,
	RideStatusMatched,
	RideStatusEnRoute,
	RideStatusArrived,
	RideStatusInTrip,
}

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// RideType distinguishes street hails from terminal-queue rides.
type RideType string

const (
	RideTypeOnDemand  RideType = "on-demand"
	RideTypeTodaQueue RideType = "toda-queue"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a labelled coordinate.
type Place struct {
	Label string
	Lat   float64
	Lng   float64
}

// Coordinate returns the point of the place.
func (p Place) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lng: p.Lng}
}

// Ride represents a passenger trip request and its lifecycle.
type Ride struct {
	ID                   string
	TenantID             string
	PassengerID          string
	DriverID             string
	Pickup               Place
	Dropoff              Place
	DriverLat            *float64
	DriverLng            *float64
	Status               RideStatus
	Fare                 float64
	DistanceKm           float64
	EstimatedDurationMin int
	ActualDurationMin    *int
	RideType             RideType
	RouteGeometry        []Coordinate
	CreatedAt            time.Time
	UpdatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time
	CancelledBy          Role
	CancelReason         string
}

// IsActive reports whether the ride is still in progress.
func (r *Ride) IsActive() bool {
	return !r.Status.IsTerminal()
}

// Clone returns a deep copy of the ride.
func (r *Ride) Clone() *Ride {
	c := *r
	c.DriverLat = cloneFloat(r.DriverLat)
	c.DriverLng = cloneFloat(r.DriverLng)
	c.ActualDurationMin = cloneInt(r.ActualDurationMin)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.RouteGeometry != nil {
		c.RouteGeometry = append([]Coordinate(nil), r.RouteGeometry...)
	}
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
