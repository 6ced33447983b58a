package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"todaride/internal/domain"
)

func TestDispatchRide_PicksNearestDriver(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.searchingRide("ride-1", "passenger-1", 14.6000, 121.0000)
	f.onlineDriver("driver-far", 14.6300, 121.0000)
	f.onlineDriver("driver-near", 14.6010, 121.0000)

	ride, err := f.dispatcher.DispatchRide(ctx, "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.Status != domain.RideStatusMatched {
		t.Fatalf("expected matched, got %s", ride.Status)
	}
	if ride.DriverID != "driver-near" {
		t.Errorf("expected driver-near, got %s", ride.DriverID)
	}
	if ride.DriverLat == nil || *ride.DriverLat != 14.6010 {
		t.Errorf("expected driver position copied onto ride, got %v", ride.DriverLat)
	}
	if n := len(f.events.OfType(domain.EventRideUpdated)); n != 1 {
		t.Errorf("expected 1 ride.updated event, got %d", n)
	}
}

func TestDispatchRide_TieGoesToLowestDriverID(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.searchingRide("ride-1", "passenger-1", 14.6000, 121.0000)
	f.onlineDriver("driver-b", 14.6010, 121.0000)
	f.onlineDriver("driver-a", 14.6010, 121.0000)

	ride, err := f.dispatcher.DispatchRide(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.DriverID != "driver-a" {
		t.Errorf("expected driver-a on tie, got %s", ride.DriverID)
	}
}

func TestDispatchRide_SkipsIneligibleDrivers(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.searchingRide("ride-1", "passenger-1", 14.6000, 121.0000)

	// Busy: nearest, but already on a ride.
	f.onlineDriver("driver-busy", 14.6001, 121.0000)
	f.matchedRide("ride-other", "passenger-2", "driver-busy")

	// Offline.
	f.store.SeedPresence(&domain.DriverPresence{
		DriverID: "driver-offline", TenantID: tenantA, IsOnline: false,
		Lat: ptr(14.6002), Lng: ptr(121.0), LastHeartbeatAt: f.clock.Now(),
	})

	// Stale heartbeat.
	f.store.SeedPresence(&domain.DriverPresence{
		DriverID: "driver-stale", TenantID: tenantA, IsOnline: true,
		Lat: ptr(14.6003), Lng: ptr(121.0), LastHeartbeatAt: f.clock.Now().Add(-2 * time.Minute),
	})

	// Other tenant.
	f.store.SeedPresence(&domain.DriverPresence{
		DriverID: "driver-foreign", TenantID: "tenant-b", IsOnline: true,
		Lat: ptr(14.6004), Lng: ptr(121.0), LastHeartbeatAt: f.clock.Now(),
	})

	f.onlineDriver("driver-ok", 14.6200, 121.0000)

	ride, err := f.dispatcher.DispatchRide(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.DriverID != "driver-ok" {
		t.Errorf("expected driver-ok, got %s", ride.DriverID)
	}
}

func TestDispatchRide_NoCandidateLeavesRideSearching(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.searchingRide("ride-1", "passenger-1", 14.6, 121.0)

	ride, err := f.dispatcher.DispatchRide(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.Status != domain.RideStatusSearching || ride.DriverID != "" {
		t.Errorf("expected untouched searching ride, got %s/%q", ride.Status, ride.DriverID)
	}
	if len(f.events.Events()) != 0 {
		t.Errorf("expected no events, got %d", len(f.events.Events()))
	}
}

func TestDispatchRide_IsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.searchingRide("ride-1", "passenger-1", 14.6, 121.0)
	f.onlineDriver("driver-1", 14.601, 121.0)
	f.onlineDriver("driver-2", 14.602, 121.0)

	first, err := f.dispatcher.DispatchRide(ctx, "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.dispatcher.DispatchRide(ctx, "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.DriverID != second.DriverID {
		t.Errorf("expected same driver, got %s then %s", first.DriverID, second.DriverID)
	}
	if n := len(f.events.OfType(domain.EventRideUpdated)); n != 1 {
		t.Errorf("expected a single match event, got %d", n)
	}
}

func TestDispatchRide_UnknownRide(t *testing.T) {
	t.Parallel()
	f := newFixture()

	_, err := f.dispatcher.DispatchRide(context.Background(), "missing")
	if !errors.Is(err, ErrRideNotFound) {
		t.Errorf("expected ErrRideNotFound, got %v", err)
	}
}

func TestDispatchRide_ConcurrentRidesNeverShareDriver(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.onlineDriver("driver-1", 14.6, 121.0)
	const rides = 8
	for i := 0; i < rides; i++ {
		f.searchingRide(fmt.Sprintf("ride-%d", i), fmt.Sprintf("passenger-%d", i), 14.6, 121.0+float64(i)*0.001)
	}

	var wg sync.WaitGroup
	for i := 0; i < rides; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.dispatcher.DispatchRide(ctx, fmt.Sprintf("ride-%d", i)); err != nil {
				t.Errorf("dispatch ride-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	matched := 0
	for _, r := range f.store.Rides() {
		if r.DriverID == "driver-1" {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("expected exactly one ride for driver-1, got %d", matched)
	}
}

func TestAssignOnPresence_ClaimsNearestSearchingRide(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.searchingRide("ride-far", "passenger-1", 14.65, 121.0)
	f.searchingRide("ride-near", "passenger-2", 14.601, 121.0)
	f.onlineDriver("driver-1", 14.6, 121.0)

	ride, err := f.dispatcher.AssignOnPresence(context.Background(), f.store.Presence("driver-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride == nil || ride.ID != "ride-near" {
		t.Fatalf("expected ride-near, got %+v", ride)
	}
	if got := f.store.Ride("ride-far"); got.Status != domain.RideStatusSearching {
		t.Errorf("expected ride-far still searching, got %s", got.Status)
	}
}

func TestAssignOnPresence_SkipsBusyOrPositionlessDriver(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.searchingRide("ride-1", "passenger-1", 14.6, 121.0)
	f.onlineDriver("driver-busy", 14.6, 121.0)
	f.matchedRide("ride-other", "passenger-2", "driver-busy")

	ride, err := f.dispatcher.AssignOnPresence(ctx, f.store.Presence("driver-busy"))
	if err != nil || ride != nil {
		t.Errorf("expected no assignment for busy driver, got %+v, %v", ride, err)
	}

	noPos := &domain.DriverPresence{DriverID: "driver-x", TenantID: tenantA, IsOnline: true, LastHeartbeatAt: f.clock.Now()}
	ride, err = f.dispatcher.AssignOnPresence(ctx, noPos)
	if err != nil || ride != nil {
		t.Errorf("expected no assignment without position, got %+v, %v", ride, err)
	}

	if got := f.store.Ride("ride-1"); got.Status != domain.RideStatusSearching {
		t.Errorf("expected ride-1 still searching, got %s", got.Status)
	}
}

func TestAssignOnPresence_ConcurrentDriversOneWinner(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.searchingRide("ride-1", "passenger-1", 14.6, 121.0)
	const drivers = 6
	for i := 0; i < drivers; i++ {
		f.onlineDriver(fmt.Sprintf("driver-%d", i), 14.6, 121.0+float64(i)*0.001)
	}

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ride, err := f.dispatcher.AssignOnPresence(ctx, f.store.Presence(id))
			if err != nil {
				t.Errorf("assign %s: %v", id, err)
				return
			}
			if ride != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(fmt.Sprintf("driver-%d", i))
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected one winner, got %d", winners)
	}
	if got := f.store.Ride("ride-1"); got.Status != domain.RideStatusMatched {
		t.Errorf("expected matched, got %s", got.Status)
	}
}

func TestNearestDriver_IgnoresCandidateOrder(t *testing.T) {
	t.Parallel()

	pickup := domain.Coordinate{Lat: 14.6, Lng: 121.0}
	a := &domain.DriverPresence{DriverID: "a", Lat: ptr(14.61), Lng: ptr(121.0)}
	b := &domain.DriverPresence{DriverID: "b", Lat: ptr(14.61), Lng: ptr(121.0)}

	for _, order := range [][]*domain.DriverPresence{{a, b}, {b, a}} {
		if got := nearestDriver(order, nil, pickup); got.DriverID != "a" {
			t.Errorf("expected a, got %s", got.DriverID)
		}
	}
	if got := nearestDriver([]*domain.DriverPresence{a}, map[string]bool{"a": true}, pickup); got != nil {
		t.Errorf("expected nil when every candidate is busy, got %s", got.DriverID)
	}
}
