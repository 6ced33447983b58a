package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/observability"
	"todaride/internal/repository"
)

// QueueService manages TODA terminal queues. Every operation locks the
// terminal row before touching its reservations.
type QueueService struct {
	emitter
	store repository.Store
	now   Clock
}

// NewQueueService creates a new QueueService.
func NewQueueService(store repository.Store, publisher events.Publisher, log logrus.FieldLogger) *QueueService {
	return &QueueService{
		emitter: emitter{publisher: publisher, log: log},
		store:   store,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *QueueService) WithClock(now Clock) *QueueService {
	s.now = now
	return s
}

// CreateTerminalRequest contains the parameters for registering a terminal.
type CreateTerminalRequest struct {
	Name     string
	Location string
	Lat      float64
	Lng      float64
	Capacity int
}

// CreateTerminal registers a terminal in the admin's tenant.
func (s *QueueService) CreateTerminal(ctx context.Context, actor domain.Actor, req CreateTerminalRequest) (*domain.Terminal, error) {
	if err := requireRole(actor, domain.RoleAdmin, domain.RoleSuperadmin); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, ErrValidation.WithMessage("terminal name is required")
	}
	if !domain.ValidCoordinate(req.Lat, req.Lng) {
		return nil, ErrInvalidCoordinates
	}
	if req.Capacity < 0 {
		return nil, ErrValidation.WithMessage("capacity must be non-negative")
	}

	now := s.now()
	terminal := &domain.Terminal{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		Name:      req.Name,
		Location:  req.Location,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Capacity:  req.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.Terminals().Create(ctx, terminal)
	})
	if err != nil {
		return nil, s.logInternal("create_terminal", actor, terminal.ID, fmt.Errorf("create terminal: %w", err))
	}

	s.emit(ctx, events.TerminalUpdated(terminal, now))
	return terminal, nil
}

// Reserve places the passenger at the back of the terminal queue. A
// passenger already queued at the terminal gets the existing reservation.
func (s *QueueService) Reserve(ctx context.Context, actor domain.Actor, terminalID string, boardingTime time.Time) (*domain.Reservation, error) {
	if err := requireRole(actor, domain.RolePassenger); err != nil {
		return nil, err
	}
	if boardingTime.IsZero() {
		return nil, ErrValidation.WithMessage("boarding time is required")
	}

	now := s.now()
	var reservation *domain.Reservation
	var terminal *domain.Terminal
	var created bool

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		t, err := tx.Terminals().GetByIDForUpdate(ctx, terminalID)
		if err != nil {
			return notFound(err, ErrTerminalNotFound)
		}
		if err := authorizeTenant(actor, t.TenantID); err != nil {
			return err
		}

		existing, err := tx.Reservations().GetActive(ctx, terminalID, actor.ID)
		if err == nil {
			reservation = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if t.Full() {
			return ErrTerminalFull
		}

		maxPos, err := tx.Reservations().MaxQueuedPosition(ctx, terminalID)
		if err != nil {
			return err
		}

		r := &domain.Reservation{
			ID:            uuid.NewString(),
			TenantID:      t.TenantID,
			PassengerID:   actor.ID,
			TerminalID:    terminalID,
			BoardingTime:  boardingTime,
			Status:        domain.ReservationConfirmed,
			QueuePosition: maxPos + 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Reservations().Create(ctx, r); err != nil {
			return err
		}

		terminal, err = tx.Terminals().AdjustQueued(ctx, terminalID, 1, now)
		if err != nil {
			return err
		}
		reservation = r
		created = true
		return nil
	})
	if err != nil {
		return nil, s.logInternal("reserve", actor, terminalID, err)
	}

	if created {
		observability.QueueOperationsTotal.WithLabelValues("reserve").Inc()
		s.queueLog("reserve", reservation).Info("reservation confirmed")
		s.emit(ctx, events.ReservationUpdated(reservation, now), events.TerminalUpdated(terminal, now))
	}
	return reservation, nil
}

// CancelReservation cancels the passenger's confirmed reservation and
// closes the gap it leaves in the queue.
func (s *QueueService) CancelReservation(ctx context.Context, actor domain.Actor, reservationID string) (*domain.Reservation, error) {
	if err := requireRole(actor, domain.RolePassenger); err != nil {
		return nil, err
	}
	return s.removeFromQueue(ctx, actor, reservationID, "cancel", domain.ReservationConfirmed, domain.ReservationCancelled)
}

// CompleteReservation completes an arrived reservation and closes the gap
// it leaves in the queue.
func (s *QueueService) CompleteReservation(ctx context.Context, actor domain.Actor, reservationID string) (*domain.Reservation, error) {
	if err := requireRole(actor, domain.RoleDriver); err != nil {
		return nil, err
	}
	return s.removeFromQueue(ctx, actor, reservationID, "complete", domain.ReservationArrived, domain.ReservationCompleted)
}

// DispatchNext promotes the lowest-position confirmed reservation to
// arrived. Position and queued counter are unchanged. Returns nil when
// nobody is waiting.
func (s *QueueService) DispatchNext(ctx context.Context, actor domain.Actor, terminalID string) (*domain.Reservation, error) {
	if err := requireRole(actor, domain.RoleDriver); err != nil {
		return nil, err
	}

	now := s.now()
	var reservation *domain.Reservation

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		t, err := tx.Terminals().GetByIDForUpdate(ctx, terminalID)
		if err != nil {
			return notFound(err, ErrTerminalNotFound)
		}
		if err := authorizeTenant(actor, t.TenantID); err != nil {
			return err
		}

		next, err := tx.Reservations().NextConfirmed(ctx, terminalID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ok, err := tx.Reservations().UpdateStatus(ctx, next.ID, domain.ReservationConfirmed, domain.ReservationArrived, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidReservationStatus
		}

		next.Status = domain.ReservationArrived
		next.UpdatedAt = now
		reservation = next
		return nil
	})
	if err != nil {
		return nil, s.logInternal("dispatch_next", actor, terminalID, err)
	}

	if reservation != nil {
		observability.QueueOperationsTotal.WithLabelValues("dispatch_next").Inc()
		s.queueLog("dispatch_next", reservation).WithField("driver_id", actor.ID).Info("passenger called")
		s.emit(ctx, events.ReservationUpdated(reservation, now))
	}
	return reservation, nil
}

// GetQueue lists the terminal's queued reservations in position order.
func (s *QueueService) GetQueue(ctx context.Context, actor domain.Actor, terminalID string) (*domain.Terminal, []*domain.Reservation, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}

	var terminal *domain.Terminal
	var queue []*domain.Reservation

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		t, err := tx.Terminals().GetByID(ctx, terminalID)
		if err != nil {
			return notFound(err, ErrTerminalNotFound)
		}
		if err := authorizeTenant(actor, t.TenantID); err != nil {
			return err
		}
		terminal = t

		queue, err = tx.Reservations().ListQueued(ctx, terminalID)
		return err
	})
	if err != nil {
		return nil, nil, s.logInternal("get_queue", actor, terminalID, err)
	}
	return terminal, queue, nil
}

// removeFromQueue moves a reservation out of the queue, shifts everyone
// behind it up by one and decrements the terminal counter, all in one
// transaction. The removed position is captured before any mutation.
func (s *QueueService) removeFromQueue(
	ctx context.Context,
	actor domain.Actor,
	reservationID string,
	operation string,
	from, to domain.ReservationStatus,
) (*domain.Reservation, error) {
	now := s.now()
	var reservation *domain.Reservation
	var terminal *domain.Terminal

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		// Read without a lock to learn the terminal, then lock terminal
		// before reservation.
		peek, err := tx.Reservations().GetByID(ctx, reservationID)
		if err != nil {
			return notFound(err, ErrReservationNotFound)
		}
		if err := authorizeTenant(actor, peek.TenantID); err != nil {
			return err
		}

		if _, err := tx.Terminals().GetByIDForUpdate(ctx, peek.TerminalID); err != nil {
			return notFound(err, ErrTerminalNotFound)
		}

		r, err := tx.Reservations().GetByIDForUpdate(ctx, reservationID)
		if err != nil {
			return notFound(err, ErrReservationNotFound)
		}
		if actor.Role == domain.RolePassenger && r.PassengerID != actor.ID {
			return ErrNotReservationOwner
		}
		if r.Status != from {
			return ErrInvalidReservationStatus.WithMessage("cannot %s a reservation that is %s", operation, r.Status)
		}

		removedPosition := r.QueuePosition

		ok, err := tx.Reservations().UpdateStatus(ctx, r.ID, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidReservationStatus
		}

		if _, err := tx.Reservations().CompactAfter(ctx, r.TerminalID, removedPosition, now); err != nil {
			return err
		}

		terminal, err = tx.Terminals().AdjustQueued(ctx, r.TerminalID, -1, now)
		if err != nil {
			return err
		}

		r.Status = to
		r.UpdatedAt = now
		reservation = r
		return nil
	})
	if err != nil {
		return nil, s.logInternal(operation+"_reservation", actor, reservationID, err)
	}

	observability.QueueOperationsTotal.WithLabelValues(operation).Inc()
	s.queueLog(operation, reservation).Info("reservation left queue")
	s.emit(ctx, events.ReservationUpdated(reservation, now), events.TerminalUpdated(terminal, now))
	return reservation, nil
}

func (s *QueueService) queueLog(op string, r *domain.Reservation) logrus.FieldLogger {
	return s.log.WithFields(logrus.Fields{
		"op":             op,
		"tenant_id":      r.TenantID,
		"terminal_id":    r.TerminalID,
		"reservation_id": r.ID,
		"queue_position": r.QueuePosition,
	})
}
