package models

import (
	"fmt"
	"time"
)

type Booking struct {
	ID                 int64      `json:"id"`
	RideID             int64      `json:"ride_id"`
	RiderID            int64      `json:"rider_id"`
	RiderName          string     `json:"rider_name,omitempty"`
	RiderEmail         string     `json:"rider_email,omitempty"`
	SeatsBooked        int64      `json:"seats_booked"`
	TotalPrice         float64    `json:"total_price"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	BookedAt           time.Time  `json:"booked_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Version            int64      `json:"version"`
}

// Reference returns the short human-readable booking reference,
// derived deterministically from the row id.
func (b *Booking) Reference() string {
	return fmt.Sprintf("BK-%06X", b.ID)
}

// ParseReference recovers the booking id from a reference string.
func ParseReference(ref string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(ref, "BK-%X", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid booking reference: %s", ref)
	}
	return id, nil
}

// IsOpen reports whether the booking still holds seat inventory.
func (b *Booking) IsOpen() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// IsTerminal reports whether the booking can no longer change status.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

// CanTransitionTo enforces the booking state machine:
// pending -> confirmed -> completed, pending|confirmed -> cancelled,
// pending -> completed (ride swept while still unconfirmed).
func (b *Booking) CanTransitionTo(next string) bool {
	switch b.Status {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled || next == StatusCompleted
	case StatusConfirmed:
		return next == StatusCancelled || next == StatusCompleted
	default:
		return false
	}
}
