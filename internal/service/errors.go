package service

import "errors"

var (
	// ErrRideNotFound is returned when the referenced ride does not exist.
	ErrRideNotFound = errors.New("ride not found")

	// ErrBookingNotFound is returned when the referenced booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrValidation is the base error for malformed input or invariant
	// violations on create/update. Wrapped with a specific message.
	ErrValidation = errors.New("validation failed")

	// ErrRideNotActive is returned when booking a ride that is no longer active.
	ErrRideNotActive = errors.New("ride is not accepting bookings")

	// ErrOwnRide is returned when a provider tries to book their own ride.
	ErrOwnRide = errors.New("providers cannot book their own rides")

	// ErrNotEnoughSeats is returned when the ride cannot cover the requested seats.
	ErrNotEnoughSeats = errors.New("not enough seats available")

	// ErrAlreadyBooked is returned when the rider already holds an open
	// booking for the ride.
	ErrAlreadyBooked = errors.New("you already have a booking for this ride")

	// ErrForbidden is returned when the actor lacks ownership or role for the
	// requested operation.
	ErrForbidden = errors.New("not allowed to perform this action")

	// ErrInvalidTransition is returned when the requested status change is
	// not reachable from the current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict is returned when a concurrent writer invalidated the
	// operation; callers may retry with fresh state.
	ErrConflict = errors.New("resource was modified concurrently")
)
