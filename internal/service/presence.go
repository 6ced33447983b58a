package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/observability"
	"todaride/internal/repository"
)

// PresenceAssigner is the dispatch entry point run after a driver comes online.
type PresenceAssigner interface {
	AssignOnPresence(ctx context.Context, presence *domain.DriverPresence) (*domain.Ride, error)
}

// PresenceService records driver heartbeats.
type PresenceService struct {
	emitter
	store       repository.Store
	assigner    PresenceAssigner
	sweeper     *PresenceSweeper
	minInterval time.Duration
	now         Clock
}

// NewPresenceService creates a new PresenceService. Online heartbeats
// arriving within minInterval of the previous one are not written.
func NewPresenceService(
	store repository.Store,
	assigner PresenceAssigner,
	sweeper *PresenceSweeper,
	publisher events.Publisher,
	log logrus.FieldLogger,
	minInterval time.Duration,
) *PresenceService {
	return &PresenceService{
		emitter:     emitter{publisher: publisher, log: log},
		store:       store,
		assigner:    assigner,
		sweeper:     sweeper,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *PresenceService) WithClock(now Clock) *PresenceService {
	s.now = now
	return s
}

// UpsertPresenceInput is a driver heartbeat. Nil coordinates keep the
// previously stored values.
type UpsertPresenceInput struct {
	IsOnline bool
	Lat      *float64
	Lng      *float64
	Heading  *float64
	Accuracy *float64
}

func (in UpsertPresenceInput) validate() error {
	if (in.Lat == nil) != (in.Lng == nil) {
		return ErrInvalidCoordinates.WithMessage("lat and lng must be provided together")
	}
	if in.Lat != nil && !domain.ValidCoordinate(*in.Lat, *in.Lng) {
		return ErrInvalidCoordinates
	}
	if in.Heading != nil && (*in.Heading < 0 || *in.Heading >= 360 || math.IsNaN(*in.Heading)) {
		return ErrValidation.WithMessage("heading must be in [0, 360)")
	}
	if in.Accuracy != nil && (*in.Accuracy < 0 || math.IsNaN(*in.Accuracy)) {
		return ErrValidation.WithMessage("accuracy must be non-negative")
	}
	return nil
}

// UpsertPresence records a driver heartbeat. A repeat online heartbeat
// inside the debounce window returns the stored record without writing.
// After a write, the stale sweep and auto-assignment run best-effort.
func (s *PresenceService) UpsertPresence(ctx context.Context, actor domain.Actor, in UpsertPresenceInput) (*domain.DriverPresence, error) {
	if err := requireRole(actor, domain.RoleDriver); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	log := s.log.WithFields(logrus.Fields{
		"op":        "upsert_presence",
		"driver_id": actor.ID,
		"tenant_id": actor.TenantID,
	})

	var result *domain.DriverPresence
	var written bool

	debounceSince := now.Add(-s.minInterval)

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.Presence().GetForUpdate(ctx, actor.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if existing != nil {
			if err := authorizeTenant(actor, existing.TenantID); err != nil {
				return err
			}
			if in.IsOnline && existing.IsOnline && existing.LastHeartbeatAt.After(debounceSince) {
				result = existing
				return nil
			}
		}

		next := &domain.DriverPresence{
			DriverID:        actor.ID,
			TenantID:        actor.TenantID,
			IsOnline:        in.IsOnline,
			Lat:             in.Lat,
			Lng:             in.Lng,
			Heading:         in.Heading,
			Accuracy:        in.Accuracy,
			LastHeartbeatAt: now,
			UpdatedAt:       now,
		}
		if existing != nil {
			if next.Lat == nil {
				next.Lat, next.Lng = existing.Lat, existing.Lng
			}
			if next.Heading == nil {
				next.Heading = existing.Heading
			}
			if next.Accuracy == nil {
				next.Accuracy = existing.Accuracy
			}
		}

		ok, err := tx.Presence().Upsert(ctx, next, debounceSince)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent first heartbeat inserted the row.
			stored, err := tx.Presence().Get(ctx, actor.ID)
			if err != nil {
				return err
			}
			if err := authorizeTenant(actor, stored.TenantID); err != nil {
				return err
			}
			result = stored
			return nil
		}
		result = next
		written = true
		return nil
	})
	if err != nil {
		return nil, s.logInternal("upsert_presence", actor, actor.ID, err)
	}

	if !written {
		observability.PresenceDebouncedTotal.Inc()
		return result, nil
	}

	observability.PresenceWritesTotal.Inc()
	s.emit(ctx, events.PresenceUpdated(result, now))

	if s.sweeper != nil {
		s.sweeper.Sweep(ctx)
	}

	if s.assigner != nil && result.IsOnline && result.HasPosition() {
		if _, err := s.assigner.AssignOnPresence(ctx, result); err != nil {
			log.WithError(err).Warn("auto-assign failed")
		}
	}

	return result, nil
}
