package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"todaride/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txRepos{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepos struct {
	tx *sql.Tx
}

func (t *txRepos) Rides() repository.RideRepository {
	return NewRideRepositoryWithTx(t.tx)
}

func (t *txRepos) Presence() repository.PresenceRepository {
	return NewPresenceRepositoryWithTx(t.tx)
}

func (t *txRepos) Terminals() repository.TerminalRepository {
	return NewTerminalRepositoryWithTx(t.tx)
}

func (t *txRepos) Reservations() repository.ReservationRepository {
	return NewReservationRepositoryWithTx(t.tx)
}

var _ repository.Store = (*Store)(nil)
