package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

const terminalColumns = `id, tenant_id, name, location, lat, lng, capacity, current_queued, created_at, updated_at`

// TerminalRepository is a PostgreSQL implementation of repository.TerminalRepository.
type TerminalRepository struct {
	q Querier
}

// NewTerminalRepositoryWithTx creates a terminal repository using a transaction.
func NewTerminalRepositoryWithTx(tx *sql.Tx) *TerminalRepository {
	return &TerminalRepository{q: tx}
}

// Create persists a new terminal.
func (r *TerminalRepository) Create(ctx context.Context, t *domain.Terminal) error {
	query := `
		INSERT INTO toda_terminals (` + terminalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		t.ID, t.TenantID, t.Name, t.Location, t.Lat, t.Lng, t.Capacity, t.CurrentQueued, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a terminal by ID.
func (r *TerminalRepository) GetByID(ctx context.Context, id string) (*domain.Terminal, error) {
	return r.getOne(ctx, `SELECT `+terminalColumns+` FROM toda_terminals WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a terminal by ID and locks the row.
func (r *TerminalRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Terminal, error) {
	return r.getOne(ctx, `SELECT `+terminalColumns+` FROM toda_terminals WHERE id = $1 FOR UPDATE`, id)
}

// AdjustQueued adds delta to the queued counter, floored at zero.
func (r *TerminalRepository) AdjustQueued(ctx context.Context, id string, delta int, now time.Time) (*domain.Terminal, error) {
	query := `
		UPDATE toda_terminals
		SET current_queued = GREATEST(current_queued + $1, 0), updated_at = $2
		WHERE id = $3
		RETURNING ` + terminalColumns

	return r.getOne(ctx, query, delta, now, id)
}

func (r *TerminalRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Terminal, error) {
	var t domain.Terminal
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&t.ID,
		&t.TenantID,
		&t.Name,
		&t.Location,
		&t.Lat,
		&t.Lng,
		&t.Capacity,
		&t.CurrentQueued,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

var _ repository.TerminalRepository = (*TerminalRepository)(nil)
