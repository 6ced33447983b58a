package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

const reservationColumns = `id, tenant_id, passenger_id, terminal_id, boarding_time, status, queue_position, created_at, updated_at`

// ReservationRepository is a PostgreSQL implementation of repository.ReservationRepository.
type ReservationRepository struct {
	q Querier
}

// NewReservationRepositoryWithTx creates a reservation repository using a transaction.
func NewReservationRepositoryWithTx(tx *sql.Tx) *ReservationRepository {
	return &ReservationRepository{q: tx}
}

func queuedStatuses() any {
	s := make([]string, len(domain.QueuedReservationStatuses))
	for i, st := range domain.QueuedReservationStatuses {
		s[i] = string(st)
	}
	return pq.Array(s)
}

// Create persists a new reservation.
func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		res.ID,
		res.TenantID,
		res.PassengerID,
		res.TerminalID,
		res.BoardingTime,
		res.Status,
		res.QueuePosition,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a reservation by ID.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a reservation by ID and locks the row.
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
}

// GetActive returns the passenger's queued reservation at the terminal.
func (r *ReservationRepository) GetActive(ctx context.Context, terminalID, passengerID string) (*domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + ` FROM reservations
		WHERE terminal_id = $1 AND passenger_id = $2 AND status = ANY($3)
		LIMIT 1
	`
	return r.getOne(ctx, query, terminalID, passengerID, queuedStatuses())
}

// MaxQueuedPosition returns the highest queued position, or 0.
func (r *ReservationRepository) MaxQueuedPosition(ctx context.Context, terminalID string) (int, error) {
	query := `
		SELECT COALESCE(MAX(queue_position), 0) FROM reservations
		WHERE terminal_id = $1 AND status = ANY($2)
	`

	var pos int
	if err := r.q.QueryRowContext(ctx, query, terminalID, queuedStatuses()).Scan(&pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// NextConfirmed returns and locks the lowest-position confirmed reservation.
func (r *ReservationRepository) NextConfirmed(ctx context.Context, terminalID string) (*domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + ` FROM reservations
		WHERE terminal_id = $1 AND status = $2
		ORDER BY queue_position ASC
		LIMIT 1
		FOR UPDATE
	`
	return r.getOne(ctx, query, terminalID, domain.ReservationConfirmed)
}

// ListQueued returns queued reservations ordered by position.
func (r *ReservationRepository) ListQueued(ctx context.Context, terminalID string) ([]*domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + ` FROM reservations
		WHERE terminal_id = $1 AND status = ANY($2)
		ORDER BY queue_position ASC
	`

	rows, err := r.q.QueryContext(ctx, query, terminalID, queuedStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// UpdateStatus moves a reservation from one status to another.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ReservationStatus, now time.Time) (bool, error) {
	query := `UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.q.ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// CompactAfter shifts every queued reservation behind position up by one.
func (r *ReservationRepository) CompactAfter(ctx context.Context, terminalID string, position int, now time.Time) (int64, error) {
	query := `
		UPDATE reservations
		SET queue_position = queue_position - 1, updated_at = $1
		WHERE terminal_id = $2 AND status = ANY($3) AND queue_position > $4
	`

	result, err := r.q.ExecContext(ctx, query, now, terminalID, queuedStatuses(), position)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ReservationRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Reservation, error) {
	res, err := scanReservation(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(
		&res.ID,
		&res.TenantID,
		&res.PassengerID,
		&res.TerminalID,
		&res.BoardingTime,
		&res.Status,
		&res.QueuePosition,
		&res.CreatedAt,
		&res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

var _ repository.ReservationRepository = (*ReservationRepository)(nil)
