package database

import (
	"context"
	"fmt"
	"time"

	"campusrides/internal/models"
)

// ScheduleEntry pairs a booking with the ride attributes needed for reporting.
type ScheduleEntry struct {
	Booking        models.Booking
	PickupLocation string
	Destination    string
	RideDate       time.Time
	RideTime       string
}

// ListScheduleRange returns bookings whose ride departs inside the date range,
// joined with ride route details, ordered by departure.
func (db *DB) ListScheduleRange(ctx context.Context, startDate, endDate time.Time) ([]ScheduleEntry, error) {
	query := `SELECT b.id, b.ride_id, b.rider_id, b.seats_booked, b.total_price, b.status,
	                 b.payment_status, COALESCE(b.cancellation_reason, ''), b.booked_at,
	                 b.created_at, b.updated_at,
	                 r.pickup_location, r.destination, date(r.date), r.time
              FROM bookings b
              JOIN rides r ON r.id = b.ride_id
              WHERE date(r.date) BETWEEN ? AND ?
              ORDER BY r.departure_at ASC, b.id ASC`
	rows, err := db.QueryContext(ctx, query,
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule range: %w", err)
	}
	defer rows.Close()

	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		var dateStr string
		err := rows.Scan(
			&e.Booking.ID, &e.Booking.RideID, &e.Booking.RiderID, &e.Booking.SeatsBooked,
			&e.Booking.TotalPrice, &e.Booking.Status, &e.Booking.PaymentStatus,
			&e.Booking.CancellationReason, &e.Booking.BookedAt,
			&e.Booking.CreatedAt, &e.Booking.UpdatedAt,
			&e.PickupLocation, &e.Destination, &dateStr, &e.RideTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		e.RideDate, err = time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ride date %s: %w", dateStr, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
