package models

import "time"

// Mail task types handled by the delivery worker.
const (
	MailBookingReceipt      = "booking_receipt"
	MailBookingConfirmation = "booking_confirmation"
	MailBookingRejection    = "booking_rejection"
)

// MailTask is a persisted unit of outbound email work (outbox row).
type MailTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"` // pending, retry, completed, failed
	RetryCount  int64      `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}
