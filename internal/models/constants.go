package models

// Ride statuses.
const (
	RideStatusActive    = "active"
	RideStatusExpired   = "expired"
	RideStatusCompleted = "completed"
	RideStatusCancelled = "cancelled"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
	PaymentFailed   = "failed"
)

// Vehicle types.
const (
	VehicleCar = "car"
	VehicleVan = "van"
	VehicleBus = "bus"
)

// Actor roles as delivered by the authentication layer.
const (
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// Cancellation actors stamped on cancelled bookings, so staff rejections
// can be told apart from rider cancellations regardless of the reason text.
const (
	CancelledByRider  = "rider"
	CancelledByStaff  = "staff"
	CancelledBySystem = "system"
)

const (
	// MaxSeats caps both ride capacity and seats per booking.
	MaxSeats = 8

	// DefaultCancellationReason is used when a rider cancels without a reason.
	DefaultCancellationReason = "no reason provided"

	// ProviderRejectionReason is used when staff reject a booking.
	ProviderRejectionReason = "booking rejected by ride provider"

	// RideCancelledReason is stamped on bookings cancelled because their ride was cancelled.
	RideCancelledReason = "ride cancelled by provider"
)

const (
	// DefaultSweepIntervalMinutes between expiration sweeps.
	DefaultSweepIntervalMinutes = 5

	// DefaultRideCloseAfterHours before an expired ride is closed out as completed.
	DefaultRideCloseAfterHours = 24

	// WorkerQueueSize is the in-memory mail queue capacity.
	WorkerQueueSize = 256

	// RateLimitRPS and RateLimitBurst are API rate limit defaults.
	RateLimitRPS   = 10
	RateLimitBurst = 20
)
