package database

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSeatsUnavailable is returned when a conditional seat decrement
	// matches no row (insufficient seats or ride no longer active).
	ErrSeatsUnavailable = errors.New("not enough seats available")

	// ErrDuplicateBooking is returned when the rider already holds an open
	// booking for the ride.
	ErrDuplicateBooking = errors.New("rider already has an open booking for this ride")

	// ErrConcurrentModification is returned when a guarded update matches no
	// row because another writer got there first.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)
