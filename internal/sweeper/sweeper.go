package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"campusrides/internal/domain"
	"campusrides/internal/events"
	"campusrides/internal/metrics"
	"campusrides/internal/models"
)

// Sweeper expires rides whose departure has passed, completes their open
// bookings, and closes out stale expired rides. Every pass is idempotent so
// overlapping or repeated runs are harmless.
type Sweeper struct {
	store      domain.Store
	publisher  domain.EventPublisher
	notifier   domain.Notifier
	clock      domain.Clock
	logger     *zerolog.Logger
	interval   time.Duration
	closeAfter time.Duration
}

func New(store domain.Store, publisher domain.EventPublisher, notifier domain.Notifier, clock domain.Clock, logger *zerolog.Logger, interval, closeAfter time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Duration(models.DefaultSweepIntervalMinutes) * time.Minute
	}
	if closeAfter <= 0 {
		closeAfter = time.Duration(models.DefaultRideCloseAfterHours) * time.Hour
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Sweeper{
		store:      store,
		publisher:  publisher,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		interval:   interval,
		closeAfter: closeAfter,
	}
}

// Start runs the sweep loop until ctx is cancelled. The first pass fires
// immediately so restarts don't leave expired rides waiting a full interval.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs one full sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.clock.Now()
	metrics.IncSweepRun()

	expiredIDs, expired := s.expireRides(ctx, now)
	completed := s.completeBookings(ctx, expiredIDs)
	closed := s.closeStaleRides(ctx, now)
	s.announceStaffCancellations(ctx, now)

	if expired > 0 || completed > 0 || closed > 0 {
		s.logger.Info().
			Int64("rides_expired", expired).
			Int64("bookings_completed", completed).
			Int64("rides_closed", closed).
			Time("now", now).
			Msg("sweep pass applied transitions")
	}
}

// expireRides moves past-departure active rides to expired and returns how
// many rows changed. The bulk update re-checks status='active' so a
// concurrent sweep or cancellation wins cleanly.
func (s *Sweeper) expireRides(ctx context.Context, now time.Time) ([]int64, int64) {
	rides, err := s.store.ListRidesByStatus(ctx, models.RideStatusActive)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: list active rides")
		return nil, 0
	}

	var ids []int64
	for _, ride := range rides {
		if ride.IsExpired(now) {
			ids = append(ids, ride.ID)
		}
	}
	if len(ids) == 0 {
		return nil, 0
	}

	n, err := s.store.MarkRidesExpired(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Ints64("ride_ids", ids).Msg("sweep: mark rides expired")
		return nil, 0
	}
	metrics.AddSweepTransitions("rides_expired", n)
	return ids, n
}

// completeBookings completes all open bookings on the rides just expired.
// Seats are intentionally not refunded; the trip happened.
func (s *Sweeper) completeBookings(ctx context.Context, ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}

	open, err := s.store.ListOpenBookingsForRides(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: list open bookings")
		return 0
	}

	n, err := s.store.CompleteOpenBookingsForRides(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: complete open bookings")
		return 0
	}
	metrics.AddSweepTransitions("bookings_completed", n)

	for _, booking := range open {
		s.notifyCompletion(ctx, booking)
	}
	return n
}

func (s *Sweeper) notifyCompletion(ctx context.Context, booking *models.Booking) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, booking.RiderID,
			"Ride completed",
			"Your booking "+booking.Reference()+" has been marked completed.",
			models.CategoryBooking, booking.ID, models.PriorityNormal)
	}
	if s.publisher == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:        booking.ID,
		BookingReference: booking.Reference(),
		RideID:           booking.RideID,
		RiderID:          booking.RiderID,
		Seats:            booking.SeatsBooked,
		TotalPrice:       booking.TotalPrice,
		Status:           models.StatusCompleted,
		PaymentStatus:    booking.PaymentStatus,
		OccurredAt:       s.clock.Now(),
	}
	for _, topic := range []string{events.UserTopic(booking.RiderID), events.RideTopic(booking.RideID)} {
		if err := s.publisher.Emit(ctx, topic, events.EventBookingCompleted, payload); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Int64("booking_id", booking.ID).Msg("sweep: emit booking_completed")
		}
	}
}

// closeStaleRides finishes the lifecycle of rides that have sat in expired
// for longer than the close-after window.
func (s *Sweeper) closeStaleRides(ctx context.Context, now time.Time) int64 {
	cutoff := now.Add(-s.closeAfter)
	n, err := s.store.CloseExpiredRidesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("sweep: close expired rides")
		return 0
	}
	metrics.AddSweepTransitions("rides_closed", n)
	return n
}

// announceStaffCancellations emits a booking_removed event for bookings
// rejected by staff since the previous pass so rider-facing views can drop
// them. Best effort only.
func (s *Sweeper) announceStaffCancellations(ctx context.Context, now time.Time) {
	if s.publisher == nil {
		return
	}

	since := now.Add(-s.interval)
	bookings, err := s.store.ListStaffCancelledSince(ctx, since)
	if err != nil {
		s.logger.Error().Err(err).Time("since", since).Msg("sweep: list staff cancellations")
		return
	}

	for _, booking := range bookings {
		payload := events.BookingEventPayload{
			BookingID:        booking.ID,
			BookingReference: booking.Reference(),
			RideID:           booking.RideID,
			RiderID:          booking.RiderID,
			Seats:            booking.SeatsBooked,
			TotalPrice:       booking.TotalPrice,
			Status:           booking.Status,
			PaymentStatus:    booking.PaymentStatus,
			Reason:           booking.CancellationReason,
			OccurredAt:       now,
		}
		topic := events.UserTopic(booking.RiderID)
		if err := s.publisher.Emit(ctx, topic, events.EventBookingRemoved, payload); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("sweep: emit booking_removed")
		}
	}
}
