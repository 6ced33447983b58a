package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"todaride/internal/domain"
	"todaride/internal/redis"
	"todaride/internal/service"
)

const (
	defaultNearbyRadiusKm = 2.0
	maxNearbyRadiusKm     = 20.0
)

var errLocationIndexDisabled = domain.NewError(domain.KindUpstream, "LOCATION_INDEX_DISABLED", "nearby lookup is not available")

// PresenceHandler handles HTTP requests for driver presence.
type PresenceHandler struct {
	presenceService *service.PresenceService
	finder          redis.LocationFinder
}

// NewPresenceHandler creates a new PresenceHandler. finder may be nil when
// Redis is disabled.
func NewPresenceHandler(presenceService *service.PresenceService, finder redis.LocationFinder) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService, finder: finder}
}

// UpsertPresenceRequest is the HTTP request body for a driver heartbeat.
type UpsertPresenceRequest struct {
	IsOnline *bool    `json:"is_online" binding:"required"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Heading  *float64 `json:"heading"`
	Accuracy *float64 `json:"accuracy"`
}

// PresenceResponse is the HTTP representation of a driver's presence.
type PresenceResponse struct {
	DriverID        string   `json:"driver_id"`
	IsOnline        bool     `json:"is_online"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	Heading         *float64 `json:"heading,omitempty"`
	Accuracy        *float64 `json:"accuracy,omitempty"`
	LastHeartbeatAt string   `json:"last_heartbeat_at"`
}

// NearbyDriverResponse is a driver returned by the nearby lookup.
type NearbyDriverResponse struct {
	DriverID   string  `json:"driver_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

// UpsertPresence handles PUT /v1/presence
func (h *PresenceHandler) UpsertPresence(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req UpsertPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	p, err := h.presenceService.UpsertPresence(c.Request.Context(), actor, service.UpsertPresenceInput{
		IsOnline: *req.IsOnline,
		Lat:      req.Lat,
		Lng:      req.Lng,
		Heading:  req.Heading,
		Accuracy: req.Accuracy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, PresenceResponse{
		DriverID:        p.DriverID,
		IsOnline:        p.IsOnline,
		Lat:             p.Lat,
		Lng:             p.Lng,
		Heading:         p.Heading,
		Accuracy:        p.Accuracy,
		LastHeartbeatAt: formatTime(&p.LastHeartbeatAt),
	})
}

// Nearby handles GET /v1/presence/nearby?lat=&lng=&radius_km=
func (h *PresenceHandler) Nearby(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if h.finder == nil {
		respondError(c, errLocationIndexDisabled)
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || !domain.ValidCoordinate(lat, lng) {
		respondError(c, service.ErrInvalidCoordinates)
		return
	}

	radius := defaultNearbyRadiusKm
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > maxNearbyRadiusKm {
			badRequest(c, "radius_km must be in (0, 20]")
			return
		}
		radius = r
	}

	drivers, err := h.finder.FindNearbyDrivers(c.Request.Context(), actor.TenantID, lat, lng, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]NearbyDriverResponse, 0, len(drivers))
	for _, d := range drivers {
		resp = append(resp, NearbyDriverResponse{
			DriverID:   d.DriverID,
			Lat:        d.Lat,
			Lng:        d.Lng,
			DistanceKm: d.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": resp})
}
