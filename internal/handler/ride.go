package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"todaride/internal/domain"
	"todaride/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// PlaceRequest is a labelled point in a request body.
type PlaceRequest struct {
	Label string   `json:"label"`
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
}

func (p PlaceRequest) place() domain.Place {
	return domain.Place{Label: p.Label, Lat: *p.Lat, Lng: *p.Lng}
}

// QuoteRequest is the HTTP request body for a fare quote.
type QuoteRequest struct {
	Pickup  PlaceRequest `json:"pickup" binding:"required"`
	Dropoff PlaceRequest `json:"dropoff" binding:"required"`
}

// QuoteResponse is the HTTP response for a fare quote.
type QuoteResponse struct {
	DistanceKm    float64             `json:"distance_km"`
	DurationMin   int                 `json:"duration_min"`
	BaseFare      float64             `json:"base_fare"`
	PerKmFare     float64             `json:"per_km_fare"`
	PerMinuteFare float64             `json:"per_minute_fare"`
	TotalFare     float64             `json:"total_fare"`
	Geometry      []domain.Coordinate `json:"geometry,omitempty"`
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	Pickup  PlaceRequest `json:"pickup" binding:"required"`
	Dropoff PlaceRequest `json:"dropoff" binding:"required"`
}

// TransitionRideRequest is the HTTP request body for a lifecycle action.
type TransitionRideRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID                   string              `json:"id"`
	PassengerID          string              `json:"passenger_id"`
	DriverID             string              `json:"driver_id,omitempty"`
	Status               string              `json:"status"`
	RideType             string              `json:"ride_type"`
	PickupLabel          string              `json:"pickup_label"`
	PickupLat            float64             `json:"pickup_lat"`
	PickupLng            float64             `json:"pickup_lng"`
	DropoffLabel         string              `json:"dropoff_label"`
	DropoffLat           float64             `json:"dropoff_lat"`
	DropoffLng           float64             `json:"dropoff_lng"`
	DriverLat            *float64            `json:"driver_lat,omitempty"`
	DriverLng            *float64            `json:"driver_lng,omitempty"`
	Fare                 float64             `json:"fare"`
	DistanceKm           float64             `json:"distance_km"`
	EstimatedDurationMin int                 `json:"estimated_duration_min"`
	ActualDurationMin    *int                `json:"actual_duration_min,omitempty"`
	RouteGeometry        []domain.Coordinate `json:"route_geometry,omitempty"`
	CreatedAt            string              `json:"created_at"`
	StartedAt            string              `json:"started_at,omitempty"`
	CompletedAt          string              `json:"completed_at,omitempty"`
	CancelledAt          string              `json:"cancelled_at,omitempty"`
	CancelledBy          string              `json:"cancelled_by,omitempty"`
	CancelReason         string              `json:"cancel_reason,omitempty"`
}

func newRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:                   r.ID,
		PassengerID:          r.PassengerID,
		DriverID:             r.DriverID,
		Status:               string(r.Status),
		RideType:             string(r.RideType),
		PickupLabel:          r.Pickup.Label,
		PickupLat:            r.Pickup.Lat,
		PickupLng:            r.Pickup.Lng,
		DropoffLabel:         r.Dropoff.Label,
		DropoffLat:           r.Dropoff.Lat,
		DropoffLng:           r.Dropoff.Lng,
		DriverLat:            r.DriverLat,
		DriverLng:            r.DriverLng,
		Fare:                 r.Fare,
		DistanceKm:           r.DistanceKm,
		EstimatedDurationMin: r.EstimatedDurationMin,
		ActualDurationMin:    r.ActualDurationMin,
		RouteGeometry:        r.RouteGeometry,
		CreatedAt:            formatTime(&r.CreatedAt),
		StartedAt:            formatTime(r.StartedAt),
		CompletedAt:          formatTime(r.CompletedAt),
		CancelledAt:          formatTime(r.CancelledAt),
		CancelledBy:          string(r.CancelledBy),
		CancelReason:         r.CancelReason,
	}
}

// Quote handles POST /v1/rides/quote
func (h *RideHandler) Quote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	quote, err := h.rideService.QuoteFare(c.Request.Context(), actor, service.QuoteRequest{
		Pickup:  req.Pickup.place().Coordinate(),
		Dropoff: req.Dropoff.place().Coordinate(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, QuoteResponse{
		DistanceKm:    quote.DistanceKm,
		DurationMin:   quote.DurationMin,
		BaseFare:      quote.Fare.BaseFare,
		PerKmFare:     quote.Fare.PerKmFare,
		PerMinuteFare: quote.Fare.PerMinuteFare,
		TotalFare:     quote.Fare.TotalFare,
		Geometry:      quote.Geometry,
	})
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), actor, service.CreateRideRequest{
		Pickup:  req.Pickup.place(),
		Dropoff: req.Dropoff.place(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CancelRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// TransitionRide handles POST /v1/rides/:id/transition
func (h *RideHandler) TransitionRide(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req TransitionRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.TransitionRide(c.Request.Context(), actor, c.Param("id"), domain.RideAction(req.Action), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// Redispatch handles POST /v1/rides/:id/dispatch
func (h *RideHandler) Redispatch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	ride, err := h.rideService.Redispatch(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}
