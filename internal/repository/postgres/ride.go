package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

const rideColumns = `id, tenant_id, passenger_id, driver_id,
	pickup_label, pickup_lat, pickup_lng, dropoff_label, dropoff_lat, dropoff_lng,
	driver_lat, driver_lng, status, fare, distance_km, estimated_duration_min, actual_duration_min,
	ride_type, route_geometry, created_at, updated_at, started_at, completed_at, cancelled_at,
	cancelled_by, cancel_reason`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q    Querier
	inTx bool
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx, inTx: true}
}

func activeStatuses() any {
	s := make([]string, len(domain.ActiveRideStatuses))
	for i, st := range domain.ActiveRideStatuses {
		s[i] = string(st)
	}
	return pq.Array(s)
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`

	geometry, err := json.Marshal(ride.RouteGeometry)
	if err != nil {
		return fmt.Errorf("encode route geometry: %w", err)
	}

	_, err = r.q.ExecContext(ctx, query,
		ride.ID,
		ride.TenantID,
		ride.PassengerID,
		nullString(ride.DriverID),
		ride.Pickup.Label,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Dropoff.Label,
		ride.Dropoff.Lat,
		ride.Dropoff.Lng,
		nullFloat(ride.DriverLat),
		nullFloat(ride.DriverLng),
		ride.Status,
		ride.Fare,
		ride.DistanceKm,
		ride.EstimatedDurationMin,
		nullInt(ride.ActualDurationMin),
		ride.RideType,
		geometry,
		ride.CreatedAt,
		ride.UpdatedAt,
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		nullString(string(ride.CancelledBy)),
		nullString(ride.CancelReason),
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a ride by ID and locks the row.
func (r *RideRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetActiveByPassenger returns the passenger's non-terminal ride.
func (r *RideRepository) GetActiveByPassenger(ctx context.Context, tenantID, passengerID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE tenant_id = $1 AND passenger_id = $2 AND ride_type = $3 AND status = ANY($4)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, tenantID, passengerID, domain.RideTypeOnDemand, activeStatuses())
}

// ListSearching returns unassigned searching rides of the tenant, oldest first.
func (r *RideRepository) ListSearching(ctx context.Context, tenantID string) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE tenant_id = $1 AND status = $2 AND driver_id IS NULL
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, tenantID, domain.RideStatusSearching)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// BusyDriverIDs returns drivers holding an active ride in the tenant.
func (r *RideRepository) BusyDriverIDs(ctx context.Context, tenantID string) ([]string, error) {
	query := `
		SELECT DISTINCT driver_id FROM rides
		WHERE tenant_id = $1 AND driver_id IS NOT NULL AND status = ANY($2)
	`

	rows, err := r.q.QueryContext(ctx, query, tenantID, activeStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim assigns a driver to a searching, unassigned ride. Inside a
// transaction the update runs under a savepoint so that losing the
// one-active-ride-per-driver index leaves the transaction usable.
func (r *RideRepository) Claim(ctx context.Context, claim repository.RideClaim) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1, driver_id = $2, driver_lat = $3, driver_lng = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND status = $8 AND driver_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM rides busy
			WHERE busy.tenant_id = $7 AND busy.driver_id = $2 AND busy.status = ANY($9)
		  )
	`

	if r.inTx {
		if _, err := r.q.ExecContext(ctx, "SAVEPOINT ride_claim"); err != nil {
			return false, err
		}
	}

	result, err := r.q.ExecContext(ctx, query,
		domain.RideStatusMatched,
		claim.DriverID,
		nullFloat(claim.DriverLat),
		nullFloat(claim.DriverLng),
		claim.At,
		claim.RideID,
		claim.TenantID,
		domain.RideStatusSearching,
		activeStatuses(),
	)
	if err != nil {
		if !isUniqueViolation(err) {
			return false, err
		}
		// A concurrent claim for the same driver won the unique index.
		if r.inTx {
			if _, rbErr := r.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT ride_claim"); rbErr != nil {
				return false, rbErr
			}
		}
		return false, nil
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if r.inTx {
		if _, err := r.q.ExecContext(ctx, "RELEASE SAVEPOINT ride_claim"); err != nil {
			return false, err
		}
	}
	return rowsAffected == 1, nil
}

// UpdateStatus writes the lifecycle fields of ride if its status is still from.
func (r *RideRepository) UpdateStatus(ctx context.Context, ride *domain.Ride, from domain.RideStatus) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1, driver_id = $2, updated_at = $3, started_at = $4, completed_at = $5,
		    actual_duration_min = $6, cancelled_at = $7, cancelled_by = $8, cancel_reason = $9
		WHERE id = $10 AND status = $11
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		nullString(ride.DriverID),
		ride.UpdatedAt,
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullInt(ride.ActualDurationMin),
		nullTime(ride.CancelledAt),
		nullString(string(ride.CancelledBy)),
		nullString(ride.CancelReason),
		ride.ID,
		from,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (r *RideRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Ride, error) {
	ride, err := scanRide(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var (
		driverID     sql.NullString
		driverLat    sql.NullFloat64
		driverLng    sql.NullFloat64
		actualMin    sql.NullInt64
		geometry     []byte
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		cancelledAt  sql.NullTime
		cancelledBy  sql.NullString
		cancelReason sql.NullString
	)

	err := row.Scan(
		&ride.ID,
		&ride.TenantID,
		&ride.PassengerID,
		&driverID,
		&ride.Pickup.Label,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Dropoff.Label,
		&ride.Dropoff.Lat,
		&ride.Dropoff.Lng,
		&driverLat,
		&driverLng,
		&ride.Status,
		&ride.Fare,
		&ride.DistanceKm,
		&ride.EstimatedDurationMin,
		&actualMin,
		&ride.RideType,
		&geometry,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
		&cancelledBy,
		&cancelReason,
	)
	if err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.DriverLat = floatPtr(driverLat)
	ride.DriverLng = floatPtr(driverLng)
	ride.ActualDurationMin = intPtr(actualMin)
	ride.StartedAt = timePtr(startedAt)
	ride.CompletedAt = timePtr(completedAt)
	ride.CancelledAt = timePtr(cancelledAt)
	ride.CancelledBy = domain.Role(cancelledBy.String)
	ride.CancelReason = cancelReason.String

	if len(geometry) > 0 {
		if err := json.Unmarshal(geometry, &ride.RouteGeometry); err != nil {
			return nil, fmt.Errorf("decode route geometry: %w", err)
		}
	}

	return &ride, nil
}

var _ repository.RideRepository = (*RideRepository)(nil)
