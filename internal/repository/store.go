package repository

import "context"

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Rides() RideRepository
	Presence() PresenceRepository
	Terminals() TerminalRepository
	Reservations() ReservationRepository
}

// Store runs units of work atomically.
type Store interface {
	// WithinTx runs fn in a transaction. The transaction commits if fn
	// returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
