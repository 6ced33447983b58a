package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"todaride/internal/domain"
)

func queuePassenger(n int) domain.Actor {
	return domain.Actor{ID: fmt.Sprintf("passenger-%d", n), Role: domain.RolePassenger, TenantID: tenantA}
}

func boarding() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

// reserveN queues n passengers at terminalID and returns their reservations.
func reserveN(t *testing.T, f *fixture, terminalID string, n int) []*domain.Reservation {
	t.Helper()
	out := make([]*domain.Reservation, 0, n)
	for i := 1; i <= n; i++ {
		r, err := f.queue.Reserve(context.Background(), queuePassenger(i), terminalID, boarding())
		if err != nil {
			t.Fatalf("reserve passenger-%d: %v", i, err)
		}
		out = append(out, r)
	}
	return out
}

func positions(t *testing.T, f *fixture, terminalID string) map[string]int {
	t.Helper()
	_, queue, err := f.queue.GetQueue(context.Background(), admin, terminalID)
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	out := make(map[string]int, len(queue))
	for _, r := range queue {
		out[r.PassengerID] = r.QueuePosition
	}
	return out
}

func TestCreateTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	term, err := f.queue.CreateTerminal(ctx, admin, CreateTerminalRequest{Name: "Poblacion TODA", Lat: 14.6, Lng: 121.0, Capacity: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if term.TenantID != tenantA || term.CurrentQueued != 0 {
		t.Errorf("unexpected terminal: %+v", term)
	}
	if f.store.Terminal(term.ID) == nil {
		t.Error("expected terminal stored")
	}

	if _, err := f.queue.CreateTerminal(ctx, passenger, CreateTerminalRequest{Name: "x", Lat: 1, Lng: 1}); !errors.Is(err, ErrForbiddenRole) {
		t.Errorf("expected ErrForbiddenRole, got %v", err)
	}
	if _, err := f.queue.CreateTerminal(ctx, admin, CreateTerminalRequest{Name: "x", Lat: 100, Lng: 1}); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestReserve_AssignsSequentialPositions(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 3)
	for i, r := range rs {
		if r.QueuePosition != i+1 {
			t.Errorf("passenger-%d: expected position %d, got %d", i+1, i+1, r.QueuePosition)
		}
		if r.Status != domain.ReservationConfirmed {
			t.Errorf("expected confirmed, got %s", r.Status)
		}
	}
	if got := f.store.Terminal("term-1").CurrentQueued; got != 3 {
		t.Errorf("expected current_queued 3, got %d", got)
	}
	if n := len(f.events.OfType(domain.EventTerminalUpdated)); n != 3 {
		t.Errorf("expected 3 terminal events, got %d", n)
	}
}

func TestReserve_DuplicateReturnsExisting(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	f.terminal("term-1", 0)

	first, err := f.queue.Reserve(ctx, passenger, "term-1", boarding())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.queue.Reserve(ctx, passenger, "term-1", boarding().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the same reservation, got %s and %s", first.ID, second.ID)
	}
	if got := f.store.Terminal("term-1").CurrentQueued; got != 1 {
		t.Errorf("expected current_queued 1, got %d", got)
	}
}

func TestReserve_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	f.terminal("term-1", 1)

	reserveN(t, f, "term-1", 1)

	if _, err := f.queue.Reserve(ctx, queuePassenger(2), "term-1", boarding()); !errors.Is(err, ErrTerminalFull) {
		t.Errorf("expected ErrTerminalFull, got %v", err)
	}
	if _, err := f.queue.Reserve(ctx, queuePassenger(2), "missing", boarding()); !errors.Is(err, ErrTerminalNotFound) {
		t.Errorf("expected ErrTerminalNotFound, got %v", err)
	}
	if _, err := f.queue.Reserve(ctx, driverActor("driver-1"), "term-1", boarding()); !errors.Is(err, ErrForbiddenRole) {
		t.Errorf("expected ErrForbiddenRole, got %v", err)
	}
	foreign := domain.Actor{ID: "passenger-x", Role: domain.RolePassenger, TenantID: "tenant-b"}
	if _, err := f.queue.Reserve(ctx, foreign, "term-1", boarding()); !errors.Is(err, ErrTenantScope) {
		t.Errorf("expected ErrTenantScope, got %v", err)
	}
	if _, err := f.queue.Reserve(ctx, queuePassenger(3), "term-1", time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing boarding time, got %v", err)
	}
}

func TestCancelReservation_CompactsQueue(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 4)

	cancelled, err := f.queue.CancelReservation(context.Background(), queuePassenger(2), rs[1].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.ReservationCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	got := positions(t, f, "term-1")
	want := map[string]int{"passenger-1": 1, "passenger-3": 2, "passenger-4": 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d queued, got %v", len(want), got)
	}
	for id, pos := range want {
		if got[id] != pos {
			t.Errorf("%s: expected position %d, got %d", id, pos, got[id])
		}
	}
	if q := f.store.Terminal("term-1").CurrentQueued; q != 3 {
		t.Errorf("expected current_queued 3, got %d", q)
	}

	// Rejoining goes to the back.
	again, err := f.queue.Reserve(context.Background(), queuePassenger(2), "term-1", boarding())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.QueuePosition != 4 {
		t.Errorf("expected position 4 on rejoin, got %d", again.QueuePosition)
	}
}

func TestCancelReservation_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 2)

	if _, err := f.queue.CancelReservation(ctx, queuePassenger(2), rs[0].ID); !errors.Is(err, ErrNotReservationOwner) {
		t.Errorf("expected ErrNotReservationOwner, got %v", err)
	}
	if _, err := f.queue.CancelReservation(ctx, queuePassenger(1), "missing"); !errors.Is(err, ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound, got %v", err)
	}

	if _, err := f.queue.DispatchNext(ctx, driverActor("driver-1"), "term-1"); err != nil {
		t.Fatalf("dispatch next: %v", err)
	}
	if _, err := f.queue.CancelReservation(ctx, queuePassenger(1), rs[0].ID); !errors.Is(err, ErrInvalidReservationStatus) {
		t.Errorf("expected ErrInvalidReservationStatus for arrived reservation, got %v", err)
	}
	if q := f.store.Terminal("term-1").CurrentQueued; q != 2 {
		t.Errorf("expected current_queued unchanged at 2, got %d", q)
	}
}

func TestDispatchNext_CallsHeadOfQueue(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	driver := driverActor("driver-1")
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 3)

	called, err := f.queue.DispatchNext(ctx, driver, "term-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called.ID != rs[0].ID || called.Status != domain.ReservationArrived {
		t.Errorf("expected passenger-1 arrived, got %s/%s", called.PassengerID, called.Status)
	}
	if called.QueuePosition != 1 {
		t.Errorf("expected position kept at 1, got %d", called.QueuePosition)
	}
	if q := f.store.Terminal("term-1").CurrentQueued; q != 3 {
		t.Errorf("expected counter unchanged at 3, got %d", q)
	}

	next, err := f.queue.DispatchNext(ctx, driver, "term-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID != rs[1].ID {
		t.Errorf("expected passenger-2 next, got %s", next.PassengerID)
	}
}

func TestDispatchNext_EmptyQueue(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.terminal("term-1", 0)

	r, err := f.queue.DispatchNext(context.Background(), driverActor("driver-1"), "term-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil for an empty queue, got %+v", r)
	}
	if len(f.events.Events()) != 0 {
		t.Errorf("expected no events, got %d", len(f.events.Events()))
	}
}

func TestCompleteReservation_RemovesFromQueue(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	driver := driverActor("driver-1")
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 3)

	if _, err := f.queue.CompleteReservation(ctx, driver, rs[0].ID); !errors.Is(err, ErrInvalidReservationStatus) {
		t.Errorf("expected confirmed reservation to be rejected, got %v", err)
	}

	if _, err := f.queue.DispatchNext(ctx, driver, "term-1"); err != nil {
		t.Fatalf("dispatch next: %v", err)
	}
	done, err := f.queue.CompleteReservation(ctx, driver, rs[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.ReservationCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}

	got := positions(t, f, "term-1")
	if got["passenger-2"] != 1 || got["passenger-3"] != 2 || len(got) != 2 {
		t.Errorf("expected passenger-2 at 1 and passenger-3 at 2, got %v", got)
	}
	if q := f.store.Terminal("term-1").CurrentQueued; q != 2 {
		t.Errorf("expected current_queued 2, got %d", q)
	}
}

func TestQueue_CompactionKeepsArrivedPositionsUnique(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	driver := driverActor("driver-1")
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 3)

	// passenger-1 and passenger-2 are called; passenger-1 then completes.
	for i := 0; i < 2; i++ {
		if _, err := f.queue.DispatchNext(ctx, driver, "term-1"); err != nil {
			t.Fatalf("dispatch next: %v", err)
		}
	}
	if _, err := f.queue.CompleteReservation(ctx, driver, rs[0].ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	seen := make(map[int]string)
	for id, pos := range positions(t, f, "term-1") {
		if other, dup := seen[pos]; dup {
			t.Errorf("position %d shared by %s and %s", pos, id, other)
		}
		seen[pos] = id
	}
	if seen[1] != "passenger-2" || seen[2] != "passenger-3" {
		t.Errorf("unexpected positions: %v", seen)
	}
}

func TestQueue_OtherTenantRejected(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	f.terminal("term-1", 0)

	rs := reserveN(t, f, "term-1", 2)
	if _, err := f.queue.DispatchNext(ctx, driverActor("driver-1"), "term-1"); err != nil {
		t.Fatalf("dispatch next: %v", err)
	}

	outsider := func(id string, role domain.Role) domain.Actor {
		return domain.Actor{ID: id, Role: role, TenantID: "tenant-b"}
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"cancel", func() error {
			_, err := f.queue.CancelReservation(ctx, outsider("passenger-2", domain.RolePassenger), rs[1].ID)
			return err
		}},
		{"complete", func() error {
			_, err := f.queue.CompleteReservation(ctx, outsider("driver-1", domain.RoleDriver), rs[0].ID)
			return err
		}},
		{"dispatch next", func() error {
			_, err := f.queue.DispatchNext(ctx, outsider("driver-1", domain.RoleDriver), "term-1")
			return err
		}},
		{"get queue", func() error {
			_, _, err := f.queue.GetQueue(ctx, outsider("admin-1", domain.RoleAdmin), "term-1")
			return err
		}},
	}
	for _, tt := range tests {
		if err := tt.call(); !errors.Is(err, ErrTenantScope) {
			t.Errorf("%s: expected ErrTenantScope, got %v", tt.name, err)
		}
	}

	if s := f.store.Reservation(rs[0].ID).Status; s != domain.ReservationArrived {
		t.Errorf("expected first reservation still arrived, got %s", s)
	}
	if s := f.store.Reservation(rs[1].ID).Status; s != domain.ReservationConfirmed {
		t.Errorf("expected second reservation still confirmed, got %s", s)
	}
	if q := f.store.Terminal("term-1").CurrentQueued; q != 2 {
		t.Errorf("expected current_queued unchanged at 2, got %d", q)
	}
}
