package domain

import (
	"context"
	"time"

	"campusrides/internal/database"
	"campusrides/internal/models"
)

// Store is the persistence boundary shared by the services and the sweeper.
type Store interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	UpdateRideWithVersion(ctx context.Context, ride *models.Ride, fromVersion int64) error
	ListRidesByStatus(ctx context.Context, status string) ([]*models.Ride, error)
	ListProviderRides(ctx context.Context, providerID int64) ([]*models.Ride, error)
	MarkRidesExpired(ctx context.Context, ids []int64) (int64, error)
	CloseExpiredRidesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CancelRide(ctx context.Context, id int64) error
	RefundSeats(ctx context.Context, rideID, seats int64) error

	CreateBookingWithReservation(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64) error
	CancelBooking(ctx context.Context, id int64, reason, cancelledBy string) error
	CompleteBooking(ctx context.Context, id int64) error
	UpdatePaymentStatus(ctx context.Context, id int64, status string) error
	HasOpenBooking(ctx context.Context, rideID, riderID int64) (bool, error)
	CountBookingsInStatuses(ctx context.Context, rideID int64, statuses ...string) (int, error)
	ListOpenBookingsForRides(ctx context.Context, rideIDs []int64) ([]*models.Booking, error)
	CompleteOpenBookingsForRides(ctx context.Context, rideIDs []int64) (int64, error)
	CancelOpenBookingsForRide(ctx context.Context, rideID int64, reason string) (int64, error)
	ListRiderBookings(ctx context.Context, riderID int64) ([]*models.Booking, error)
	ListRideBookings(ctx context.Context, rideID int64) ([]*models.Booking, error)
	ListStaffCancelledSince(ctx context.Context, since time.Time) ([]*models.Booking, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListUserNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error

	CreateMailTask(ctx context.Context, task *models.MailTask) error
	GetPendingMailTasks(ctx context.Context, limit int) ([]models.MailTask, error)
	UpdateMailTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error

	ListScheduleRange(ctx context.Context, startDate, endDate time.Time) ([]database.ScheduleEntry, error)
}

// EventPublisher delivers best-effort real-time events to a topic
// (user_<id> or ride_<id>).
type EventPublisher interface {
	Emit(ctx context.Context, topic, event string, payload any) error
}

// Notifier persists user-facing notifications. Fire-and-forget from the
// caller's perspective; failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, message, category string, relatedID int64, priority string)
}

// MailDetails carries everything a booking email needs.
type MailDetails struct {
	BookingReference string  `json:"booking_reference"`
	RiderEmail       string  `json:"rider_email"`
	RiderName        string  `json:"rider_name"`
	PickupLocation   string  `json:"pickup_location"`
	Destination      string  `json:"destination"`
	Date             string  `json:"date"`
	Time             string  `json:"time"`
	Seats            int64   `json:"seats"`
	TotalPrice       float64 `json:"total_price"`
	Reason           string  `json:"reason,omitempty"`
}

// Mailer is the outbound email boundary. Delivery is best-effort; callers
// must tolerate failure without affecting booking state.
type Mailer interface {
	SendBookingReceipt(ctx context.Context, details MailDetails) error
	SendBookingConfirmation(ctx context.Context, details MailDetails) error
	SendBookingRejection(ctx context.Context, details MailDetails) error
}

// MailEnqueuer hands email work to the delivery worker.
type MailEnqueuer interface {
	EnqueueMail(ctx context.Context, taskType string, bookingID int64, details MailDetails) error
}

// Clock abstracts time.Now so time-driven logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
