package domain

// Route is the routing provider's answer for a pickup/dropoff pair.
type Route struct {
	DistanceKm  float64
	DurationMin int
	Geometry    []Coordinate
}

var (
	// ErrRoutingUnavailable is returned when the routing provider fails.
	ErrRoutingUnavailable = NewError(KindUpstream, "ROUTING_UNAVAILABLE", "routing service unavailable")

	// ErrRoutingEmpty is returned when no route connects the two points.
	ErrRoutingEmpty = NewError(KindUpstream, "ROUTING_EMPTY", "no route between pickup and dropoff")
)
