package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"todaride/internal/config"
	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/logging"
	"todaride/internal/repository"
	"todaride/internal/repository/memory"
)

const tenantA = "tenant-a"

var (
	passenger = domain.Actor{ID: "passenger-1", Role: domain.RolePassenger, TenantID: tenantA}
	admin     = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin, TenantID: tenantA}
)

func driverActor(id string) domain.Actor {
	return domain.Actor{ID: id, Role: domain.RoleDriver, TenantID: tenantA}
}

func ptr(v float64) *float64 { return &v }

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRouter returns a fixed route or error.
type fakeRouter struct {
	route domain.Route
	err   error
	calls int
}

func (r *fakeRouter) Route(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Route, error) {
	r.calls++
	if r.err != nil {
		return domain.Route{}, r.err
	}
	return r.route, nil
}

type fixture struct {
	store      *memory.Store
	events     *events.Recorder
	clock      *fakeClock
	router     *fakeRouter
	dispatcher *Dispatcher
	sweeper    *PresenceSweeper
	rides      *RideService
	presence   *PresenceService
	queue      *QueueService
}

var testFare = config.FareConfig{BaseFare: 40, RatePerKm: 12, RatePerMinute: 2}

func newFixture() *fixture {
	store := memory.NewStore()
	rec := events.NewRecorder()
	clock := newFakeClock()
	router := &fakeRouter{route: domain.Route{DistanceKm: 2.4, DurationMin: 12}}
	log := logging.Discard()

	dispatcher := NewDispatcher(store, rec, log, 90*time.Second).WithClock(clock.Now)
	sweeper := NewPresenceSweeper(store, NewSweepGate(30*time.Second), nil, rec, log, 90*time.Second).WithClock(clock.Now)

	return &fixture{
		store:      store,
		events:     rec,
		clock:      clock,
		router:     router,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		rides:      NewRideService(store, router, NewFareEstimator(testFare), dispatcher, rec, log).WithClock(clock.Now),
		presence:   NewPresenceService(store, dispatcher, sweeper, rec, log, 5*time.Second).WithClock(clock.Now),
		queue:      NewQueueService(store, rec, log).WithClock(clock.Now),
	}
}

// onlineDriver seeds a fresh online driver at lat/lng.
func (f *fixture) onlineDriver(id string, lat, lng float64) {
	f.store.SeedPresence(&domain.DriverPresence{
		DriverID:        id,
		TenantID:        tenantA,
		IsOnline:        true,
		Lat:             ptr(lat),
		Lng:             ptr(lng),
		LastHeartbeatAt: f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	})
}

// searchingRide seeds a searching ride with pickup at lat/lng.
func (f *fixture) searchingRide(id, passengerID string, lat, lng float64) {
	now := f.clock.Now()
	f.store.SeedRide(&domain.Ride{
		ID:          id,
		TenantID:    tenantA,
		PassengerID: passengerID,
		Pickup:      domain.Place{Label: "pickup", Lat: lat, Lng: lng},
		Dropoff:     domain.Place{Label: "dropoff", Lat: lat + 0.02, Lng: lng},
		Status:      domain.RideStatusSearching,
		RideType:    domain.RideTypeOnDemand,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// matchedRide seeds a ride already assigned to driverID.
func (f *fixture) matchedRide(id, passengerID, driverID string) {
	now := f.clock.Now()
	f.store.SeedRide(&domain.Ride{
		ID:          id,
		TenantID:    tenantA,
		PassengerID: passengerID,
		DriverID:    driverID,
		Pickup:      domain.Place{Lat: 14.60, Lng: 121.00},
		Dropoff:     domain.Place{Lat: 14.62, Lng: 121.00},
		Status:      domain.RideStatusMatched,
		RideType:    domain.RideTypeOnDemand,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (f *fixture) terminal(id string, capacity int) {
	now := f.clock.Now()
	f.store.SeedTerminal(&domain.Terminal{
		ID:        id,
		TenantID:  tenantA,
		Name:      "Poblacion TODA",
		Lat:       14.60,
		Lng:       121.00,
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func discardLog() logrus.FieldLogger { return logging.Discard() }

// hookedStore wraps a store so tests can fail transactions or swap
// individual repositories.
type hookedStore struct {
	repository.Store
	txErr    error
	rides    func(repository.RideRepository) repository.RideRepository
	presence func(repository.PresenceRepository) repository.PresenceRepository
}

func (h *hookedStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if h.txErr != nil {
		return h.txErr
	}
	return h.Store.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(hookedTx{Tx: tx, h: h})
	})
}

type hookedTx struct {
	repository.Tx
	h *hookedStore
}

func (t hookedTx) Rides() repository.RideRepository {
	if t.h.rides != nil {
		return t.h.rides(t.Tx.Rides())
	}
	return t.Tx.Rides()
}

func (t hookedTx) Presence() repository.PresenceRepository {
	if t.h.presence != nil {
		return t.h.presence(t.Tx.Presence())
	}
	return t.Tx.Presence()
}

// duplicateRides reports ErrDuplicate for the first failures inserts, as
// when a concurrent request from the same passenger wins the race.
type duplicateRides struct {
	repository.RideRepository
	failures *int
}

func (r duplicateRides) Create(ctx context.Context, ride *domain.Ride) error {
	if *r.failures > 0 {
		*r.failures--
		return repository.ErrDuplicate
	}
	return r.RideRepository.Create(ctx, ride)
}

// staleReadPresence misses rows on the locking read, as when another
// heartbeat inserts the first record after the read.
type staleReadPresence struct {
	repository.PresenceRepository
}

func (p staleReadPresence) GetForUpdate(ctx context.Context, driverID string) (*domain.DriverPresence, error) {
	return nil, repository.ErrNotFound
}
