package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/observability"
	"todaride/internal/repository"
)

// Router resolves a driving route between two points.
type Router interface {
	Route(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Route, error)
}

// RideDispatcher is the dispatch entry point run after a ride is created.
type RideDispatcher interface {
	DispatchRide(ctx context.Context, rideID string) (*domain.Ride, error)
}

// RideService handles on-demand ride operations.
type RideService struct {
	emitter
	store      repository.Store
	router     Router
	fare       *FareEstimator
	dispatcher RideDispatcher
	now        Clock
}

// NewRideService creates a new RideService.
func NewRideService(
	store repository.Store,
	router Router,
	fare *FareEstimator,
	dispatcher RideDispatcher,
	publisher events.Publisher,
	log logrus.FieldLogger,
) *RideService {
	return &RideService{
		emitter:    emitter{publisher: publisher, log: log},
		store:      store,
		router:     router,
		fare:       fare,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (s *RideService) WithClock(now Clock) *RideService {
	s.now = now
	return s
}

// QuoteRequest contains the endpoints to price.
type QuoteRequest struct {
	Pickup  domain.Coordinate
	Dropoff domain.Coordinate
}

// Quote is a routed fare estimate.
type Quote struct {
	DistanceKm  float64
	DurationMin int
	Fare        FareBreakdown
	Geometry    []domain.Coordinate
}

// QuoteFare routes the trip and prices it. Nothing is persisted.
func (s *RideService) QuoteFare(ctx context.Context, actor domain.Actor, req QuoteRequest) (*Quote, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateEndpoints(req.Pickup, req.Dropoff); err != nil {
		return nil, err
	}

	route, err := s.route(ctx, req.Pickup, req.Dropoff)
	if err != nil {
		return nil, err
	}

	fare, err := s.fare.Estimate(route.DistanceKm, route.DurationMin)
	if err != nil {
		return nil, err
	}

	return &Quote{
		DistanceKm:  route.DistanceKm,
		DurationMin: route.DurationMin,
		Fare:        fare,
		Geometry:    route.Geometry,
	}, nil
}

// CreateRideRequest contains the parameters for requesting a ride.
type CreateRideRequest struct {
	Pickup  domain.Place
	Dropoff domain.Place
}

// CreateRide requests an on-demand ride. A passenger with an active ride
// gets that ride back. Routing failures abort before anything is stored.
// Dispatch runs immediately; its failure leaves the ride searching.
func (s *RideService) CreateRide(ctx context.Context, actor domain.Actor, req CreateRideRequest) (*domain.Ride, error) {
	if err := requireRole(actor, domain.RolePassenger); err != nil {
		return nil, err
	}
	if err := validateEndpoints(req.Pickup.Coordinate(), req.Dropoff.Coordinate()); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"op":           "create_ride",
		"tenant_id":    actor.TenantID,
		"passenger_id": actor.ID,
	})

	existing, err := s.activeRide(ctx, actor)
	if err != nil {
		return nil, s.logInternal("create_ride", actor, "", err)
	}
	if existing != nil {
		return existing, nil
	}

	route, err := s.route(ctx, req.Pickup.Coordinate(), req.Dropoff.Coordinate())
	if err != nil {
		log.WithError(err).Warn("routing failed")
		return nil, err
	}

	fare, err := s.fare.Estimate(route.DistanceKm, route.DurationMin)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ride := &domain.Ride{
		ID:                   uuid.NewString(),
		TenantID:             actor.TenantID,
		PassengerID:          actor.ID,
		Pickup:               req.Pickup,
		Dropoff:              req.Dropoff,
		Status:               domain.RideStatusSearching,
		Fare:                 fare.TotalFare,
		DistanceKm:           route.DistanceKm,
		EstimatedDurationMin: route.DurationMin,
		RideType:             domain.RideTypeOnDemand,
		RouteGeometry:        route.Geometry,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	existing, err = s.insertRide(ctx, actor, ride)
	if err != nil {
		return nil, s.logInternal("create_ride", actor, ride.ID, err)
	}
	if existing != nil {
		return existing, nil
	}

	observability.RidesCreatedTotal.Inc()
	log = log.WithField("ride_id", ride.ID)
	log.Info("ride created")
	s.emit(ctx, events.RideUpdated(ride, now))

	dispatched, err := s.dispatcher.DispatchRide(ctx, ride.ID)
	if err != nil {
		log.WithError(err).Warn("initial dispatch failed")
		return ride, nil
	}
	return dispatched, nil
}

// GetRide returns a ride visible to the actor: the passenger, the assigned
// driver, or a tenant admin.
func (s *RideService) GetRide(ctx context.Context, actor domain.Actor, rideID string) (*domain.Ride, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var ride *domain.Ride
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Rides().GetByID(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound)
		}
		ride = r
		return nil
	})
	if err != nil {
		return nil, s.logInternal("get_ride", actor, rideID, err)
	}

	if err := authorizeTenant(actor, ride.TenantID); err != nil {
		return nil, err
	}
	switch actor.Role {
	case domain.RolePassenger:
		if ride.PassengerID != actor.ID {
			return nil, ErrNotRidePassenger
		}
	case domain.RoleDriver:
		if ride.DriverID != actor.ID {
			return nil, ErrNotAssignedDriver
		}
	}
	return ride, nil
}

// CancelRide cancels the passenger's own ride.
func (s *RideService) CancelRide(ctx context.Context, actor domain.Actor, rideID, reason string) (*domain.Ride, error) {
	return s.transition(ctx, actor, rideID, domain.ActionPassengerCancel, reason)
}

// TransitionRide applies a lifecycle action on behalf of the actor.
func (s *RideService) TransitionRide(ctx context.Context, actor domain.Actor, rideID string, action domain.RideAction, reason string) (*domain.Ride, error) {
	return s.transition(ctx, actor, rideID, action, reason)
}

// Redispatch retries matching for a ride that is still searching.
func (s *RideService) Redispatch(ctx context.Context, actor domain.Actor, rideID string) (*domain.Ride, error) {
	if err := requireRole(actor, domain.RoleAdmin, domain.RoleSuperadmin); err != nil {
		return nil, err
	}
	if _, err := s.scopedRide(ctx, actor, rideID); err != nil {
		return nil, s.logInternal("redispatch_ride", actor, rideID, err)
	}
	return s.dispatcher.DispatchRide(ctx, rideID)
}

func (s *RideService) transition(ctx context.Context, actor domain.Actor, rideID string, action domain.RideAction, reason string) (*domain.Ride, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	role, ok := domain.ActionActor(action)
	if !ok {
		return nil, ErrValidation.WithMessage("unknown action %q", action)
	}
	if actor.Role != role {
		return nil, ErrForbiddenRole
	}

	now := s.now()
	var ride *domain.Ride

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Rides().GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound)
		}
		if err := authorizeTenant(actor, r.TenantID); err != nil {
			return err
		}
		if role == domain.RoleDriver && r.DriverID != actor.ID {
			return ErrNotAssignedDriver
		}
		if role == domain.RolePassenger && r.PassengerID != actor.ID {
			return ErrNotRidePassenger
		}

		next, err := domain.Transition(r.Status, action)
		if err != nil {
			return err
		}

		from := r.Status
		applyTransition(r, action, next, actor.Role, reason, now)

		ok, err := tx.Rides().UpdateStatus(ctx, r, from)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition.WithMessage("ride changed concurrently")
		}
		ride = r
		return nil
	})
	if err != nil {
		return nil, s.logInternal("transition_ride", actor, rideID, err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(action)).Inc()
	s.log.WithFields(logrus.Fields{
		"op":        "transition_ride",
		"ride_id":   ride.ID,
		"tenant_id": ride.TenantID,
		"action":    action,
		"status":    ride.Status,
	}).Info("ride transitioned")
	s.emit(ctx, events.RideUpdated(ride, now))
	return ride, nil
}

// applyTransition stamps the lifecycle fields that accompany a status change.
func applyTransition(r *domain.Ride, action domain.RideAction, next domain.RideStatus, by domain.Role, reason string, now time.Time) {
	r.Status = next
	r.UpdatedAt = now

	switch action {
	case domain.ActionStartTrip:
		r.StartedAt = &now
	case domain.ActionCompleteTrip:
		r.CompletedAt = &now
		if r.StartedAt != nil {
			minutes := int(math.Round(now.Sub(*r.StartedAt).Minutes()))
			r.ActualDurationMin = &minutes
		}
	case domain.ActionDriverCancel, domain.ActionPassengerCancel:
		r.CancelledAt = &now
		r.CancelledBy = by
		r.CancelReason = reason
		r.DriverID = ""
	}
}

func (s *RideService) scopedRide(ctx context.Context, actor domain.Actor, rideID string) (*domain.Ride, error) {
	var ride *domain.Ride
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Rides().GetByID(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound)
		}
		ride = r
		return authorizeTenant(actor, r.TenantID)
	})
	return ride, err
}

// insertRide stores a new ride. When a concurrent request from the same
// passenger won, the winner's ride is returned instead. If the winner
// already finished by the time it is re-read, the insert is tried once more.
func (s *RideService) insertRide(ctx context.Context, actor domain.Actor, ride *domain.Ride) (*domain.Ride, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
			return tx.Rides().Create(ctx, ride)
		})
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create ride: %w", err)
		}

		existing, err := s.activeRide(ctx, actor)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, ErrActiveRideConflict
}

func (s *RideService) activeRide(ctx context.Context, actor domain.Actor) (*domain.Ride, error) {
	var ride *domain.Ride
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Rides().GetActiveByPassenger(ctx, actor.TenantID, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		ride = r
		return err
	})
	return ride, err
}

func (s *RideService) route(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Route, error) {
	route, err := s.router.Route(ctx, pickup, dropoff)
	if err != nil {
		if errors.Is(err, ErrRoutingUnavailable) || errors.Is(err, ErrRoutingEmpty) {
			return domain.Route{}, err
		}
		return domain.Route{}, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	if route.DistanceKm < 0 || route.DurationMin < 0 {
		return domain.Route{}, ErrRoutingEmpty
	}
	return route, nil
}

func validateEndpoints(pickup, dropoff domain.Coordinate) error {
	if !domain.ValidCoordinate(pickup.Lat, pickup.Lng) {
		return ErrInvalidCoordinates.WithMessage("invalid pickup coordinates")
	}
	if !domain.ValidCoordinate(dropoff.Lat, dropoff.Lng) {
		return ErrInvalidCoordinates.WithMessage("invalid dropoff coordinates")
	}
	return nil
}
