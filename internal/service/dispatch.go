package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/observability"
	"todaride/internal/repository"
)

// Dispatcher matches searching rides with idle online drivers. It is the
// only writer of the searching→matched transition.
type Dispatcher struct {
	emitter
	store  repository.Store
	maxAge time.Duration
	now    Clock
}

// NewDispatcher creates a new Dispatcher. Drivers whose last heartbeat is
// older than maxAge are never candidates.
func NewDispatcher(store repository.Store, publisher events.Publisher, log logrus.FieldLogger, maxAge time.Duration) *Dispatcher {
	return &Dispatcher{
		emitter: emitter{publisher: publisher, log: log},
		store:   store,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (d *Dispatcher) WithClock(now Clock) *Dispatcher {
	d.now = now
	return d
}

// DispatchRide assigns the nearest available driver to a searching ride.
// A ride that is no longer searching, or has no candidate, is returned
// unchanged. Losing the claim to a concurrent writer is not an error.
func (d *Dispatcher) DispatchRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	start := time.Now()
	defer func() { observability.DispatchLatency.Observe(time.Since(start).Seconds()) }()

	now := d.now()
	log := d.log.WithFields(logrus.Fields{"op": "dispatch_ride", "ride_id": rideID})

	var ride *domain.Ride
	var matched bool

	err := d.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Rides().GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return notFound(err, ErrRideNotFound)
		}
		ride = r

		if r.Status != domain.RideStatusSearching || r.DriverID != "" {
			return nil
		}

		busyIDs, err := tx.Rides().BusyDriverIDs(ctx, r.TenantID)
		if err != nil {
			return err
		}

		candidates, err := tx.Presence().ListAvailable(ctx, r.TenantID, now.Add(-d.maxAge))
		if err != nil {
			return err
		}

		best := nearestDriver(candidates, toSet(busyIDs), r.Pickup.Coordinate())
		if best == nil {
			log.WithField("candidates", len(candidates)).Debug("no available driver")
			return nil
		}

		ok, err := tx.Rides().Claim(ctx, repository.RideClaim{
			RideID:    r.ID,
			TenantID:  r.TenantID,
			DriverID:  best.DriverID,
			DriverLat: best.Lat,
			DriverLng: best.Lng,
			At:        now,
		})
		if err != nil {
			return err
		}

		reread, err := tx.Rides().GetByID(ctx, r.ID)
		if err != nil {
			return err
		}
		ride = reread

		if !ok {
			observability.ClaimConflictsTotal.Inc()
			log.WithField("driver_id", best.DriverID).Info("claim lost to concurrent writer")
			return nil
		}
		matched = true
		return nil
	})
	if err != nil {
		return nil, d.logInternal("dispatch_ride", domain.Actor{}, rideID, err)
	}

	if matched {
		observability.MatchesTotal.WithLabelValues("ride").Inc()
		log.WithField("driver_id", ride.DriverID).Info("ride matched")
		d.emit(ctx, events.RideUpdated(ride, now))
	}
	return ride, nil
}

// AssignOnPresence assigns the nearest searching ride to a driver who just
// came online. Returns nil when the driver is busy, has no position, or
// nothing is waiting.
func (d *Dispatcher) AssignOnPresence(ctx context.Context, presence *domain.DriverPresence) (*domain.Ride, error) {
	if presence == nil || !presence.IsOnline || !presence.HasPosition() {
		return nil, nil
	}

	now := d.now()
	if !presence.Fresh(now, d.maxAge) {
		return nil, nil
	}

	log := d.log.WithFields(logrus.Fields{
		"op":        "assign_on_presence",
		"driver_id": presence.DriverID,
		"tenant_id": presence.TenantID,
	})

	var ride *domain.Ride

	err := d.store.WithinTx(ctx, func(tx repository.Tx) error {
		busyIDs, err := tx.Rides().BusyDriverIDs(ctx, presence.TenantID)
		if err != nil {
			return err
		}
		if toSet(busyIDs)[presence.DriverID] {
			return nil
		}

		searching, err := tx.Rides().ListSearching(ctx, presence.TenantID)
		if err != nil {
			return err
		}

		target := nearestRide(searching, domain.Coordinate{Lat: *presence.Lat, Lng: *presence.Lng})
		if target == nil {
			return nil
		}

		ok, err := tx.Rides().Claim(ctx, repository.RideClaim{
			RideID:    target.ID,
			TenantID:  presence.TenantID,
			DriverID:  presence.DriverID,
			DriverLat: presence.Lat,
			DriverLng: presence.Lng,
			At:        now,
		})
		if err != nil {
			return err
		}
		if !ok {
			observability.ClaimConflictsTotal.Inc()
			log.WithField("ride_id", target.ID).Info("claim lost to concurrent writer")
			return nil
		}

		ride, err = tx.Rides().GetByID(ctx, target.ID)
		return err
	})
	if err != nil {
		driver := domain.Actor{ID: presence.DriverID, Role: domain.RoleDriver, TenantID: presence.TenantID}
		return nil, d.logInternal("assign_on_presence", driver, presence.DriverID, err)
	}

	if ride != nil {
		observability.MatchesTotal.WithLabelValues("presence").Inc()
		log.WithField("ride_id", ride.ID).Info("ride matched")
		d.emit(ctx, events.RideUpdated(ride, now))
	}
	return ride, nil
}

// nearestDriver returns the closest non-busy candidate to pickup. Ties go
// to the lowest driver ID.
func nearestDriver(candidates []*domain.DriverPresence, busy map[string]bool, pickup domain.Coordinate) *domain.DriverPresence {
	ordered := make([]*domain.DriverPresence, 0, len(candidates))
	for _, c := range candidates {
		if c.HasPosition() && !busy[c.DriverID] {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].DriverID < ordered[j].DriverID })

	var best *domain.DriverPresence
	bestKm := 0.0
	for _, c := range ordered {
		km := domain.HaversineKm(*c.Lat, *c.Lng, pickup.Lat, pickup.Lng)
		if best == nil || km < bestKm {
			best, bestKm = c, km
		}
	}
	return best
}

// nearestRide returns the searching ride whose pickup is closest to the
// driver. Ties go to the oldest ride.
func nearestRide(rides []*domain.Ride, driver domain.Coordinate) *domain.Ride {
	var best *domain.Ride
	bestKm := 0.0
	for _, r := range rides {
		if r.Status != domain.RideStatusSearching || r.DriverID != "" {
			continue
		}
		km := domain.HaversineKm(driver.Lat, driver.Lng, r.Pickup.Lat, r.Pickup.Lng)
		if best == nil || km < bestKm {
			best, bestKm = r, km
		}
	}
	return best
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
