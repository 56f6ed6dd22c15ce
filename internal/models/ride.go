package models

import (
	"fmt"
	"time"
)

type Ride struct {
	ID             int64     `json:"id"`
	ProviderID     int64     `json:"provider_id"`
	PickupLocation string    `json:"pickup_location"`
	Destination    string    `json:"destination"`
	Date           time.Time `json:"date"`
	Time           string    `json:"time"` // HH:MM, local to the ride
	TotalSeats     int64     `json:"total_seats"`
	AvailableSeats int64     `json:"available_seats"`
	PricePerSeat   float64   `json:"price_per_seat"`
	VehicleType    string    `json:"vehicle_type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

// DepartureAt combines the calendar date and the HH:MM time field into a
// single instant in the given location.
func (r *Ride) DepartureAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("15:04", r.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ride time %q: %w", r.Time, err)
	}
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// IsExpired reports whether now is strictly after the ride's departure.
// Unparseable time fields count as expired so broken rows cannot stay bookable.
func (r *Ride) IsExpired(now time.Time) bool {
	departure, err := r.DepartureAt(now.Location())
	if err != nil {
		return true
	}
	return now.After(departure)
}

// Validate checks the static ride invariants. Time-based rules
// (future departure) live in the service since they need a clock.
func (r *Ride) Validate() error {
	if r.ProviderID == 0 {
		return fmt.Errorf("provider id is required")
	}
	if r.PickupLocation == "" || r.Destination == "" {
		return fmt.Errorf("pickup location and destination are required")
	}
	if r.TotalSeats < 1 || r.TotalSeats > MaxSeats {
		return fmt.Errorf("total seats must be between 1 and %d", MaxSeats)
	}
	if r.AvailableSeats < 0 || r.AvailableSeats > r.TotalSeats {
		return fmt.Errorf("available seats must be between 0 and total seats")
	}
	if r.PricePerSeat < 0 {
		return fmt.Errorf("price per seat must not be negative")
	}
	switch r.VehicleType {
	case VehicleCar, VehicleVan, VehicleBus:
	default:
		return fmt.Errorf("unknown vehicle type: %s", r.VehicleType)
	}
	if _, err := time.Parse("15:04", r.Time); err != nil {
		return fmt.Errorf("time must be HH:MM: %w", err)
	}
	return nil
}

// CanTransitionTo enforces the monotonic ride status order:
// active -> expired -> completed, or active -> cancelled.
func (r *Ride) CanTransitionTo(next string) bool {
	switch r.Status {
	case RideStatusActive:
		return next == RideStatusExpired || next == RideStatusCancelled
	case RideStatusExpired:
		return next == RideStatusCompleted
	default:
		return false
	}
}
