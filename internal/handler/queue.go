package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"todaride/internal/domain"
	"todaride/internal/service"
)

// QueueHandler handles HTTP requests for TODA terminal queues.
type QueueHandler struct {
	queueService *service.QueueService
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

// CreateTerminalRequest is the HTTP request body for registering a terminal.
type CreateTerminalRequest struct {
	Name     string   `json:"name" binding:"required"`
	Location string   `json:"location"`
	Lat      *float64 `json:"lat" binding:"required"`
	Lng      *float64 `json:"lng" binding:"required"`
	Capacity int      `json:"capacity"`
}

// ReserveRequest is the HTTP request body for joining a terminal queue.
type ReserveRequest struct {
	BoardingTime time.Time `json:"boarding_time" binding:"required"`
}

// TerminalResponse is the HTTP representation of a terminal.
type TerminalResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location,omitempty"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Capacity      int     `json:"capacity"`
	CurrentQueued int     `json:"current_queued"`
}

// ReservationResponse is the HTTP representation of a reservation.
type ReservationResponse struct {
	ID            string `json:"id"`
	TerminalID    string `json:"terminal_id"`
	PassengerID   string `json:"passenger_id"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
	BoardingTime  string `json:"boarding_time"`
	CreatedAt     string `json:"created_at"`
}

// QueueResponse is a terminal with its queued reservations.
type QueueResponse struct {
	Terminal     TerminalResponse      `json:"terminal"`
	Reservations []ReservationResponse `json:"reservations"`
}

func newTerminalResponse(t *domain.Terminal) TerminalResponse {
	return TerminalResponse{
		ID:            t.ID,
		Name:          t.Name,
		Location:      t.Location,
		Lat:           t.Lat,
		Lng:           t.Lng,
		Capacity:      t.Capacity,
		CurrentQueued: t.CurrentQueued,
	}
}

func newReservationResponse(r *domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:            r.ID,
		TerminalID:    r.TerminalID,
		PassengerID:   r.PassengerID,
		Status:        string(r.Status),
		QueuePosition: r.QueuePosition,
		BoardingTime:  formatTime(&r.BoardingTime),
		CreatedAt:     formatTime(&r.CreatedAt),
	}
}

// CreateTerminal handles POST /v1/terminals
func (h *QueueHandler) CreateTerminal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateTerminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	t, err := h.queueService.CreateTerminal(c.Request.Context(), actor, service.CreateTerminalRequest{
		Name:     req.Name,
		Location: req.Location,
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Capacity: req.Capacity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newTerminalResponse(t))
}

// Reserve handles POST /v1/terminals/:id/reservations
func (h *QueueHandler) Reserve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	r, err := h.queueService.Reserve(c.Request.Context(), actor, c.Param("id"), req.BoardingTime)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newReservationResponse(r))
}

// GetQueue handles GET /v1/terminals/:id/queue
func (h *QueueHandler) GetQueue(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	t, queue, err := h.queueService.GetQueue(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := QueueResponse{
		Terminal:     newTerminalResponse(t),
		Reservations: make([]ReservationResponse, 0, len(queue)),
	}
	for _, r := range queue {
		resp.Reservations = append(resp.Reservations, newReservationResponse(r))
	}
	respondJSON(c, http.StatusOK, resp)
}

// DispatchNext handles POST /v1/terminals/:id/dispatch-next
func (h *QueueHandler) DispatchNext(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	r, err := h.queueService.DispatchNext(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if r == nil {
		c.Status(http.StatusNoContent)
		return
	}

	respondJSON(c, http.StatusOK, newReservationResponse(r))
}

// CancelReservation handles POST /v1/reservations/:id/cancel
func (h *QueueHandler) CancelReservation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	r, err := h.queueService.CancelReservation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newReservationResponse(r))
}

// CompleteReservation handles POST /v1/reservations/:id/complete
func (h *QueueHandler) CompleteReservation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	r, err := h.queueService.CompleteReservation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newReservationResponse(r))
}
