// Package memory provides an in-process repository.Store. Transactions are
// serialised by a single mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

type state struct {
	rides        map[string]*domain.Ride
	presence     map[string]*domain.DriverPresence
	terminals    map[string]*domain.Terminal
	reservations map[string]*domain.Reservation
}

func newState() *state {
	return &state{
		rides:        make(map[string]*domain.Ride),
		presence:     make(map[string]*domain.DriverPresence),
		terminals:    make(map[string]*domain.Terminal),
		reservations: make(map[string]*domain.Reservation),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.rides {
		c.rides[k] = v.Clone()
	}
	for k, v := range s.presence {
		c.presence[k] = v.Clone()
	}
	for k, v := range s.terminals {
		t := *v
		c.terminals[k] = &t
	}
	for k, v := range s.reservations {
		r := *v
		c.reservations[k] = &r
	}
	return c
}

// Store is an in-memory implementation of repository.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx runs fn with exclusive access to the store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&tx{st: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// SeedTerminal stores a terminal directly.
func (s *Store) SeedTerminal(t *domain.Terminal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.state.terminals[t.ID] = &c
}

// SeedPresence stores a presence record directly.
func (s *Store) SeedPresence(p *domain.DriverPresence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.presence[p.DriverID] = p.Clone()
}

// SeedRide stores a ride directly, bypassing uniqueness checks.
func (s *Store) SeedRide(r *domain.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rides[r.ID] = r.Clone()
}

// Ride returns a copy of a stored ride for assertions.
func (s *Store) Ride(id string) *domain.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.rides[id]
	if !ok {
		return nil
	}
	return r.Clone()
}

// Rides returns copies of all stored rides ordered by ID.
func (s *Store) Rides() []*domain.Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Ride, 0, len(s.state.rides))
	for _, r := range s.state.rides {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Presence returns a copy of a stored presence record.
func (s *Store) Presence(driverID string) *domain.DriverPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.presence[driverID]
	if !ok {
		return nil
	}
	return p.Clone()
}

// Terminal returns a copy of a stored terminal.
func (s *Store) Terminal(id string) *domain.Terminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.terminals[id]
	if !ok {
		return nil
	}
	c := *t
	return &c
}

// Reservation returns a copy of a stored reservation.
func (s *Store) Reservation(id string) *domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.reservations[id]
	if !ok {
		return nil
	}
	c := *r
	return &c
}

type tx struct {
	st *state
}

func (t *tx) Rides() repository.RideRepository               { return &rideRepo{st: t.st} }
func (t *tx) Presence() repository.PresenceRepository        { return &presenceRepo{st: t.st} }
func (t *tx) Terminals() repository.TerminalRepository       { return &terminalRepo{st: t.st} }
func (t *tx) Reservations() repository.ReservationRepository { return &reservationRepo{st: t.st} }

var _ repository.Store = (*Store)(nil)

// ──────────────────────────────────────────────
// RIDES
// ──────────────────────────────────────────────

type rideRepo struct {
	st *state
}

func (r *rideRepo) Create(ctx context.Context, ride *domain.Ride) error {
	for _, existing := range r.st.rides {
		if existing.ID == ride.ID {
			return repository.ErrDuplicate
		}
		if !existing.IsActive() || existing.TenantID != ride.TenantID {
			continue
		}
		if ride.RideType == domain.RideTypeOnDemand && existing.RideType == domain.RideTypeOnDemand &&
			existing.PassengerID == ride.PassengerID {
			return repository.ErrDuplicate
		}
		if ride.DriverID != "" && existing.DriverID == ride.DriverID {
			return repository.ErrDuplicate
		}
	}
	r.st.rides[ride.ID] = ride.Clone()
	return nil
}

func (r *rideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	ride, ok := r.st.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride.Clone(), nil
}

func (r *rideRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *rideRepo) GetActiveByPassenger(ctx context.Context, tenantID, passengerID string) (*domain.Ride, error) {
	for _, ride := range r.st.rides {
		if ride.TenantID == tenantID && ride.PassengerID == passengerID &&
			ride.RideType == domain.RideTypeOnDemand && ride.IsActive() {
			return ride.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *rideRepo) ListSearching(ctx context.Context, tenantID string) ([]*domain.Ride, error) {
	var out []*domain.Ride
	for _, ride := range r.st.rides {
		if ride.TenantID == tenantID && ride.Status == domain.RideStatusSearching && ride.DriverID == "" {
			out = append(out, ride.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *rideRepo) BusyDriverIDs(ctx context.Context, tenantID string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, ride := range r.st.rides {
		if ride.TenantID == tenantID && ride.DriverID != "" && ride.IsActive() && !seen[ride.DriverID] {
			seen[ride.DriverID] = true
			ids = append(ids, ride.DriverID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *rideRepo) Claim(ctx context.Context, claim repository.RideClaim) (bool, error) {
	ride, ok := r.st.rides[claim.RideID]
	if !ok || ride.TenantID != claim.TenantID || ride.Status != domain.RideStatusSearching || ride.DriverID != "" {
		return false, nil
	}
	for _, other := range r.st.rides {
		if other.TenantID == claim.TenantID && other.DriverID == claim.DriverID && other.IsActive() {
			return false, nil
		}
	}

	ride.Status = domain.RideStatusMatched
	ride.DriverID = claim.DriverID
	ride.DriverLat = copyFloat(claim.DriverLat)
	ride.DriverLng = copyFloat(claim.DriverLng)
	ride.UpdatedAt = claim.At
	return true, nil
}

func (r *rideRepo) UpdateStatus(ctx context.Context, ride *domain.Ride, from domain.RideStatus) (bool, error) {
	stored, ok := r.st.rides[ride.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	updated := stored.Clone()
	updated.Status = ride.Status
	updated.DriverID = ride.DriverID
	updated.UpdatedAt = ride.UpdatedAt
	updated.StartedAt = copyTime(ride.StartedAt)
	updated.CompletedAt = copyTime(ride.CompletedAt)
	updated.ActualDurationMin = copyInt(ride.ActualDurationMin)
	updated.CancelledAt = copyTime(ride.CancelledAt)
	updated.CancelledBy = ride.CancelledBy
	updated.CancelReason = ride.CancelReason
	r.st.rides[ride.ID] = updated
	return true, nil
}

// ──────────────────────────────────────────────
// PRESENCE
// ──────────────────────────────────────────────

type presenceRepo struct {
	st *state
}

func (r *presenceRepo) Get(ctx context.Context, driverID string) (*domain.DriverPresence, error) {
	p, ok := r.st.presence[driverID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *presenceRepo) GetForUpdate(ctx context.Context, driverID string) (*domain.DriverPresence, error) {
	return r.Get(ctx, driverID)
}

func (r *presenceRepo) Upsert(ctx context.Context, p *domain.DriverPresence, debounceSince time.Time) (bool, error) {
	if existing, ok := r.st.presence[p.DriverID]; ok &&
		p.IsOnline && existing.IsOnline && existing.LastHeartbeatAt.After(debounceSince) {
		return false, nil
	}
	r.st.presence[p.DriverID] = p.Clone()
	return true, nil
}

func (r *presenceRepo) ListAvailable(ctx context.Context, tenantID string, since time.Time) ([]*domain.DriverPresence, error) {
	var out []*domain.DriverPresence
	for _, p := range r.st.presence {
		if p.TenantID == tenantID && p.IsOnline && !p.LastHeartbeatAt.Before(since) && p.HasPosition() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

func (r *presenceRepo) MarkStaleOffline(ctx context.Context, before, now time.Time) ([]*domain.DriverPresence, error) {
	var out []*domain.DriverPresence
	for _, p := range r.st.presence {
		if p.IsOnline && p.LastHeartbeatAt.Before(before) {
			p.IsOnline = false
			p.UpdatedAt = now
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

// ──────────────────────────────────────────────
// TERMINALS
// ──────────────────────────────────────────────

type terminalRepo struct {
	st *state
}

func (r *terminalRepo) Create(ctx context.Context, t *domain.Terminal) error {
	if _, ok := r.st.terminals[t.ID]; ok {
		return repository.ErrDuplicate
	}
	c := *t
	r.st.terminals[t.ID] = &c
	return nil
}

func (r *terminalRepo) GetByID(ctx context.Context, id string) (*domain.Terminal, error) {
	t, ok := r.st.terminals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *terminalRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Terminal, error) {
	return r.GetByID(ctx, id)
}

func (r *terminalRepo) AdjustQueued(ctx context.Context, id string, delta int, now time.Time) (*domain.Terminal, error) {
	t, ok := r.st.terminals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.CurrentQueued += delta
	if t.CurrentQueued < 0 {
		t.CurrentQueued = 0
	}
	t.UpdatedAt = now
	c := *t
	return &c, nil
}

// ──────────────────────────────────────────────
// RESERVATIONS
// ──────────────────────────────────────────────

type reservationRepo struct {
	st *state
}

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	for _, existing := range r.st.reservations {
		if existing.ID == res.ID {
			return repository.ErrDuplicate
		}
		if existing.TerminalID == res.TerminalID && existing.PassengerID == res.PassengerID && existing.Status.Queued() {
			return repository.ErrDuplicate
		}
	}
	c := *res
	r.st.reservations[res.ID] = &c
	return nil
}

func (r *reservationRepo) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	res, ok := r.st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *res
	return &c, nil
}

func (r *reservationRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r *reservationRepo) GetActive(ctx context.Context, terminalID, passengerID string) (*domain.Reservation, error) {
	for _, res := range r.st.reservations {
		if res.TerminalID == terminalID && res.PassengerID == passengerID && res.Status.Queued() {
			c := *res
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *reservationRepo) MaxQueuedPosition(ctx context.Context, terminalID string) (int, error) {
	max := 0
	for _, res := range r.st.reservations {
		if res.TerminalID == terminalID && res.Status.Queued() && res.QueuePosition > max {
			max = res.QueuePosition
		}
	}
	return max, nil
}

func (r *reservationRepo) NextConfirmed(ctx context.Context, terminalID string) (*domain.Reservation, error) {
	var next *domain.Reservation
	for _, res := range r.st.reservations {
		if res.TerminalID != terminalID || res.Status != domain.ReservationConfirmed {
			continue
		}
		if next == nil || res.QueuePosition < next.QueuePosition {
			next = res
		}
	}
	if next == nil {
		return nil, repository.ErrNotFound
	}
	c := *next
	return &c, nil
}

func (r *reservationRepo) ListQueued(ctx context.Context, terminalID string) ([]*domain.Reservation, error) {
	var out []*domain.Reservation
	for _, res := range r.st.reservations {
		if res.TerminalID == terminalID && res.Status.Queued() {
			c := *res
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out, nil
}

func (r *reservationRepo) UpdateStatus(ctx context.Context, id string, from, to domain.ReservationStatus, now time.Time) (bool, error) {
	res, ok := r.st.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = now
	return true, nil
}

func (r *reservationRepo) CompactAfter(ctx context.Context, terminalID string, position int, now time.Time) (int64, error) {
	var n int64
	for _, res := range r.st.reservations {
		if res.TerminalID == terminalID && res.Status.Queued() && res.QueuePosition > position {
			res.QueuePosition--
			res.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
