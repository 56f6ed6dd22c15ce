package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"campusrides/internal/models"
)

const rideColumns = `id, provider_id, pickup_location, destination, date(date), time,
                 total_seats, available_seats, price_per_seat, vehicle_type,
                 status, created_at, updated_at, version`

func scanRide(row interface{ Scan(...any) error }) (*models.Ride, error) {
	r := &models.Ride{}
	var dateStr string
	err := row.Scan(
		&r.ID, &r.ProviderID, &r.PickupLocation, &r.Destination, &dateStr, &r.Time,
		&r.TotalSeats, &r.AvailableSeats, &r.PricePerSeat, &r.VehicleType,
		&r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Date, err = time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ride date %s: %w", dateStr, err)
	}
	return r, nil
}

func (db *DB) CreateRide(ctx context.Context, ride *models.Ride) error {
	departure, err := ride.DepartureAt(time.Local)
	if err != nil {
		return fmt.Errorf("failed to compute departure: %w", err)
	}

	query := `INSERT INTO rides (
				provider_id, pickup_location, destination, date, time, departure_at,
				total_seats, available_seats, price_per_seat, vehicle_type, status,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		ride.ProviderID,
		ride.PickupLocation,
		ride.Destination,
		ride.Date.Format("2006-01-02"),
		ride.Time,
		departure,
		ride.TotalSeats,
		ride.AvailableSeats,
		ride.PricePerSeat,
		ride.VehicleType,
		ride.Status,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	ride.ID = id
	ride.CreatedAt = now
	ride.UpdatedAt = now
	ride.Version = 1

	return nil
}

func (db *DB) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = ?`
	ride, err := scanRide(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return ride, nil
}

// UpdateRideWithVersion rewrites the mutable ride attributes behind an
// optimistic version guard. Only active rides may be updated.
func (db *DB) UpdateRideWithVersion(ctx context.Context, ride *models.Ride, fromVersion int64) error {
	departure, err := ride.DepartureAt(time.Local)
	if err != nil {
		return fmt.Errorf("failed to compute departure: %w", err)
	}

	query := `UPDATE rides SET
				pickup_location = ?, destination = ?, date = ?, time = ?, departure_at = ?,
				total_seats = ?, available_seats = ?, price_per_seat = ?, vehicle_type = ?,
				updated_at = ?, version = version + 1
			  WHERE id = ? AND status = 'active' AND version = ?`
	result, err := db.ExecContext(ctx, query,
		ride.PickupLocation,
		ride.Destination,
		ride.Date.Format("2006-01-02"),
		ride.Time,
		departure,
		ride.TotalSeats,
		ride.AvailableSeats,
		ride.PricePerSeat,
		ride.VehicleType,
		time.Now(),
		ride.ID,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) ListRidesByStatus(ctx context.Context, status string) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = ? ORDER BY departure_at ASC`
	rows, err := db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides by status: %w", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

func (db *DB) ListProviderRides(ctx context.Context, providerID int64) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE provider_id = ? ORDER BY departure_at DESC`
	rows, err := db.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider rides: %w", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

func collectRides(rows *sql.Rows) ([]*models.Ride, error) {
	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// MarkRidesExpired bulk-transitions the given rides from active to expired.
// Rides that already left active are skipped, which keeps the sweep idempotent.
func (db *DB) MarkRidesExpired(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE rides SET status = 'expired', updated_at = ?, version = version + 1
			  WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'active'`
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark rides expired: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// CloseExpiredRidesBefore transitions expired rides whose departure is older
// than the cutoff to completed.
func (db *DB) CloseExpiredRidesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE rides SET status = 'completed', updated_at = ?, version = version + 1
			  WHERE status = 'expired' AND departure_at <= ?`
	result, err := db.ExecContext(ctx, query, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired rides: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// CancelRide transitions an active ride to cancelled.
func (db *DB) CancelRide(ctx context.Context, id int64) error {
	query := `UPDATE rides SET status = 'cancelled', updated_at = ?, version = version + 1
			  WHERE id = ? AND status = 'active'`
	result, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel ride: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RefundSeats returns seat inventory to a ride, capped at total_seats.
func (db *DB) RefundSeats(ctx context.Context, rideID, seats int64) error {
	query := `UPDATE rides SET available_seats = MIN(total_seats, available_seats + ?),
			  updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, seats, time.Now(), rideID)
	if err != nil {
		return fmt.Errorf("failed to refund seats: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
