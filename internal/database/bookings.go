package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campusrides/internal/models"
)

const bookingColumns = `id, ride_id, rider_id, rider_name, rider_email, seats_booked,
                 total_price, status, payment_status, COALESCE(cancellation_reason, ''),
                 COALESCE(cancelled_by, ''), booked_at,
                 confirmed_at, completed_at, cancelled_at, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var confirmedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.RideID, &b.RiderID, &b.RiderName, &b.RiderEmail, &b.SeatsBooked,
		&b.TotalPrice, &b.Status, &b.PaymentStatus, &b.CancellationReason,
		&b.CancelledBy, &b.BookedAt,
		&confirmedAt, &completedAt, &cancelledAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	return b, nil
}

// CreateBookingWithReservation inserts the booking and decrements the ride's
// seat inventory in one transaction. The decrement is conditional on the ride
// being active with enough seats, so two riders racing for the last seats can
// never oversell; the loser's update matches zero rows and the transaction
// rolls back. The open-booking uniqueness check is repeated inside the
// transaction to close the window between the service's precheck and commit.
func (db *DB) CreateBookingWithReservation(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var open int
	queryOpen := `SELECT COUNT(*) FROM bookings
	              WHERE ride_id = ? AND rider_id = ? AND status IN ('pending', 'confirmed')`
	if err := tx.QueryRowContext(ctx, queryOpen, booking.RideID, booking.RiderID).Scan(&open); err != nil {
		return fmt.Errorf("failed to check open bookings in tx: %w", err)
	}
	if open > 0 {
		return ErrDuplicateBooking
	}

	now := time.Now()
	queryDecrement := `UPDATE rides SET available_seats = available_seats - ?, updated_at = ?
	                   WHERE id = ? AND status = 'active' AND available_seats >= ?`
	result, err := tx.ExecContext(ctx, queryDecrement, booking.SeatsBooked, now, booking.RideID, booking.SeatsBooked)
	if err != nil {
		return fmt.Errorf("failed to reserve seats in tx: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSeatsUnavailable
	}

	queryInsert := `INSERT INTO bookings (
				ride_id, rider_id, rider_name, rider_email, seats_booked, total_price,
				status, payment_status, booked_at, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err = tx.ExecContext(ctx, queryInsert,
		booking.RideID,
		booking.RiderID,
		booking.RiderName,
		booking.RiderEmail,
		booking.SeatsBooked,
		booking.TotalPrice,
		booking.Status,
		booking.PaymentStatus,
		now,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.BookedAt = now
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ConfirmBooking transitions a pending booking to confirmed.
func (db *DB) ConfirmBooking(ctx context.Context, id int64) error {
	now := time.Now()
	query := `UPDATE bookings SET status = 'confirmed', confirmed_at = ?, updated_at = ?,
			  version = version + 1 WHERE id = ? AND status = 'pending'`
	result, err := db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CancelBooking transitions an open booking to cancelled, recording the
// reason and which side of the marketplace cancelled it.
func (db *DB) CancelBooking(ctx context.Context, id int64, reason, cancelledBy string) error {
	now := time.Now()
	query := `UPDATE bookings SET status = 'cancelled', cancelled_at = ?, cancellation_reason = ?,
			  cancelled_by = ?, updated_at = ?, version = version + 1
			  WHERE id = ? AND status IN ('pending', 'confirmed')`
	result, err := db.ExecContext(ctx, query, now, reason, cancelledBy, now, id)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CompleteBooking transitions an open booking to completed.
func (db *DB) CompleteBooking(ctx context.Context, id int64) error {
	now := time.Now()
	query := `UPDATE bookings SET status = 'completed', completed_at = ?, updated_at = ?,
			  version = version + 1 WHERE id = ? AND status IN ('pending', 'confirmed')`
	result, err := db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) UpdatePaymentStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) HasOpenBooking(ctx context.Context, rideID, riderID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings
	          WHERE ride_id = ? AND rider_id = ? AND status IN ('pending', 'confirmed')`
	var count int
	if err := db.QueryRowContext(ctx, query, rideID, riderID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check open booking: %w", err)
	}
	return count > 0, nil
}

func (db *DB) CountBookingsInStatuses(ctx context.Context, rideID int64, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM bookings WHERE ride_id = ? AND status IN (` + placeholders(len(statuses)) + `)`
	args := make([]any, 0, len(statuses)+1)
	args = append(args, rideID)
	for _, s := range statuses {
		args = append(args, s)
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (db *DB) ListOpenBookingsForRides(ctx context.Context, rideIDs []int64) ([]*models.Booking, error) {
	if len(rideIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE ride_id IN (` + placeholders(len(rideIDs)) + `) AND status IN ('pending', 'confirmed')
	          ORDER BY id ASC`
	args := make([]any, 0, len(rideIDs))
	for _, id := range rideIDs {
		args = append(args, id)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// CompleteOpenBookingsForRides bulk-completes the open bookings of the given
// rides. No seat refund happens here: a booking that rides out to departure
// is presumed fulfilled.
func (db *DB) CompleteOpenBookingsForRides(ctx context.Context, rideIDs []int64) (int64, error) {
	if len(rideIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	query := `UPDATE bookings SET status = 'completed', completed_at = ?, updated_at = ?,
			  version = version + 1
			  WHERE ride_id IN (` + placeholders(len(rideIDs)) + `) AND status IN ('pending', 'confirmed')`
	args := make([]any, 0, len(rideIDs)+2)
	args = append(args, now, now)
	for _, id := range rideIDs {
		args = append(args, id)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to complete open bookings: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// CancelOpenBookingsForRide bulk-cancels the open bookings of a cancelled ride.
func (db *DB) CancelOpenBookingsForRide(ctx context.Context, rideID int64, reason string) (int64, error) {
	now := time.Now()
	query := `UPDATE bookings SET status = 'cancelled', cancelled_at = ?, cancellation_reason = ?,
			  cancelled_by = ?, updated_at = ?, version = version + 1
			  WHERE ride_id = ? AND status IN ('pending', 'confirmed')`
	result, err := db.ExecContext(ctx, query, now, reason, models.CancelledBySystem, now, rideID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel open bookings: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (db *DB) ListRiderBookings(ctx context.Context, riderID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE rider_id = ? ORDER BY booked_at DESC`
	rows, err := db.QueryContext(ctx, query, riderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rider bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

func (db *DB) ListRideBookings(ctx context.Context, rideID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ride_id = ? ORDER BY booked_at ASC`
	rows, err := db.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// ListStaffCancelledSince returns bookings rejected by staff after the given
// instant, used by the sweeper's best-effort cleanup pass. Selection goes by
// the cancelled_by stamp, so reason text never matters.
func (db *DB) ListStaffCancelledSince(ctx context.Context, since time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE status = 'cancelled' AND cancelled_by = ? AND cancelled_at >= ?
	          ORDER BY cancelled_at ASC`
	rows, err := db.QueryContext(ctx, query, models.CancelledByStaff, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff-cancelled bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]*models.Booking, error) {
	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
