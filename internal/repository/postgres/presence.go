package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

const presenceColumns = `driver_id, tenant_id, is_online, lat, lng, heading, accuracy, last_heartbeat_at, updated_at`

// PresenceRepository is a PostgreSQL implementation of repository.PresenceRepository.
type PresenceRepository struct {
	q Querier
}

// NewPresenceRepositoryWithTx creates a presence repository using a transaction.
func NewPresenceRepositoryWithTx(tx *sql.Tx) *PresenceRepository {
	return &PresenceRepository{q: tx}
}

// Get retrieves the presence record of a driver.
func (r *PresenceRepository) Get(ctx context.Context, driverID string) (*domain.DriverPresence, error) {
	return r.getOne(ctx, `SELECT `+presenceColumns+` FROM driver_presence WHERE driver_id = $1`, driverID)
}

// GetForUpdate retrieves the presence record of a driver with a row lock.
func (r *PresenceRepository) GetForUpdate(ctx context.Context, driverID string) (*domain.DriverPresence, error) {
	return r.getOne(ctx, `SELECT `+presenceColumns+` FROM driver_presence WHERE driver_id = $1 FOR UPDATE`, driverID)
}

func (r *PresenceRepository) getOne(ctx context.Context, query string, args ...any) (*domain.DriverPresence, error) {
	p, err := scanPresence(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Upsert creates or replaces the presence record of a driver. The conflict
// branch skips an online heartbeat landing on a row that is online and
// was refreshed after debounceSince, which also covers two first inserts
// racing each other.
func (r *PresenceRepository) Upsert(ctx context.Context, p *domain.DriverPresence, debounceSince time.Time) (bool, error) {
	query := `
		INSERT INTO driver_presence (` + presenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (driver_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			is_online = EXCLUDED.is_online,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			heading = EXCLUDED.heading,
			accuracy = EXCLUDED.accuracy,
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			updated_at = EXCLUDED.updated_at
		WHERE NOT (EXCLUDED.is_online AND driver_presence.is_online AND driver_presence.last_heartbeat_at > $10)
	`

	result, err := r.q.ExecContext(ctx, query,
		p.DriverID,
		p.TenantID,
		p.IsOnline,
		nullFloat(p.Lat),
		nullFloat(p.Lng),
		nullFloat(p.Heading),
		nullFloat(p.Accuracy),
		p.LastHeartbeatAt,
		p.UpdatedAt,
		debounceSince,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListAvailable returns fresh online drivers with coordinates, ordered by driver ID.
func (r *PresenceRepository) ListAvailable(ctx context.Context, tenantID string, since time.Time) ([]*domain.DriverPresence, error) {
	query := `
		SELECT ` + presenceColumns + ` FROM driver_presence
		WHERE tenant_id = $1 AND is_online AND last_heartbeat_at >= $2
		  AND lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY driver_id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPresence(rows)
}

// MarkStaleOffline flips stale online drivers offline.
func (r *PresenceRepository) MarkStaleOffline(ctx context.Context, before, now time.Time) ([]*domain.DriverPresence, error) {
	query := `
		UPDATE driver_presence
		SET is_online = FALSE, updated_at = $1
		WHERE is_online AND last_heartbeat_at < $2
		RETURNING ` + presenceColumns

	rows, err := r.q.QueryContext(ctx, query, now, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPresence(rows)
}

func collectPresence(rows *sql.Rows) ([]*domain.DriverPresence, error) {
	var out []*domain.DriverPresence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPresence(row rowScanner) (*domain.DriverPresence, error) {
	var p domain.DriverPresence
	var lat, lng, heading, accuracy sql.NullFloat64

	if err := row.Scan(
		&p.DriverID,
		&p.TenantID,
		&p.IsOnline,
		&lat,
		&lng,
		&heading,
		&accuracy,
		&p.LastHeartbeatAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Lat = floatPtr(lat)
	p.Lng = floatPtr(lng)
	p.Heading = floatPtr(heading)
	p.Accuracy = floatPtr(accuracy)
	return &p, nil
}

var _ repository.PresenceRepository = (*PresenceRepository)(nil)
