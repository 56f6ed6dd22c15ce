package service

import (
	"context"
	"errors"
	"fmt"

	"campusrides/internal/database"
	"campusrides/internal/domain"
	"campusrides/internal/events"
	"campusrides/internal/metrics"
	"campusrides/internal/models"

	"github.com/rs/zerolog"
)

// Actor is the already-authenticated identity performing an operation.
type Actor struct {
	ID   int64
	Role string
}

// CreateBookingRequest carries the booking parameters plus rider contact
// details for the email receipt.
type CreateBookingRequest struct {
	RideID     int64
	RiderID    int64
	Seats      int64
	RiderName  string
	RiderEmail string
}

type BookingService struct {
	store     domain.Store
	publisher domain.EventPublisher
	notifier  domain.Notifier
	mail      domain.MailEnqueuer
	clock     domain.Clock
	maxSeats  int64
	logger    *zerolog.Logger
}

func NewBookingService(store domain.Store, publisher domain.EventPublisher, notifier domain.Notifier, mail domain.MailEnqueuer, clock domain.Clock, maxSeats int64, logger *zerolog.Logger) *BookingService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if maxSeats < 1 || maxSeats > models.MaxSeats {
		maxSeats = models.MaxSeats
	}
	return &BookingService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		mail:      mail,
		clock:     clock,
		maxSeats:  maxSeats,
		logger:    logger,
	}
}

// CreateBooking reserves seats on a ride. The precondition checks run in
// order against freshly loaded state; the seat decrement and booking insert
// commit atomically, so the only race left is the conditional decrement
// itself, which surfaces as ErrNotEnoughSeats rather than a retry.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if req.Seats < 1 || req.Seats > s.maxSeats {
		return nil, fmt.Errorf("%w: seats must be between 1 and %d", ErrValidation, s.maxSeats)
	}

	ride, err := s.store.GetRide(ctx, req.RideID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, err
	}

	if ride.Status != models.RideStatusActive {
		return nil, ErrRideNotActive
	}
	if req.RiderID == ride.ProviderID {
		return nil, ErrOwnRide
	}
	if req.Seats > ride.AvailableSeats {
		return nil, ErrNotEnoughSeats
	}

	hasOpen, err := s.store.HasOpenBooking(ctx, req.RideID, req.RiderID)
	if err != nil {
		return nil, err
	}
	if hasOpen {
		return nil, ErrAlreadyBooked
	}

	// Rider contact travels with the booking row so the later
	// confirmation and rejection emails have a recipient.
	booking := &models.Booking{
		RideID:        req.RideID,
		RiderID:       req.RiderID,
		RiderName:     req.RiderName,
		RiderEmail:    req.RiderEmail,
		SeatsBooked:   req.Seats,
		TotalPrice:    float64(req.Seats) * ride.PricePerSeat,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	if err := s.store.CreateBookingWithReservation(ctx, booking); err != nil {
		switch {
		case errors.Is(err, database.ErrSeatsUnavailable):
			return nil, ErrNotEnoughSeats
		case errors.Is(err, database.ErrDuplicateBooking):
			return nil, ErrAlreadyBooked
		default:
			return nil, err
		}
	}

	metrics.IncBookingCreated()

	// Post-commit side effects; each best-effort and independent.
	s.notify(ctx, ride.ProviderID, "New booking", fmt.Sprintf("Booking %s: %d seat(s) on your ride %s → %s",
		booking.Reference(), booking.SeatsBooked, ride.PickupLocation, ride.Destination),
		models.CategoryBooking, booking.ID, models.PriorityNormal)
	s.emitBooking(ctx, events.EventNewBooking, booking, "", events.UserTopic(ride.ProviderID), events.RideTopic(ride.ID))
	s.enqueueMail(ctx, models.MailBookingReceipt, booking, ride, "")

	return booking, nil
}

// UpdateStatus applies a booking transition on behalf of an actor. Staff must
// own the ride, students must own the booking. Completion is driven by the
// expiration sweep and cannot be requested here.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID int64, actor Actor, newStatus, reason string) (*models.Booking, error) {
	booking, ride, err := s.loadBookingAndRide(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(actor, booking, ride); err != nil {
		return nil, err
	}

	switch newStatus {
	case models.StatusConfirmed:
		if actor.Role != models.RoleStaff {
			return nil, ErrForbidden
		}
		if !booking.CanTransitionTo(models.StatusConfirmed) {
			return nil, fmt.Errorf("%w: cannot confirm %s booking", ErrInvalidTransition, booking.Status)
		}
		if err := s.store.ConfirmBooking(ctx, bookingID); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return nil, ErrConflict
			}
			return nil, err
		}
		s.notify(ctx, booking.RiderID, "Booking confirmed",
			fmt.Sprintf("Your booking %s has been confirmed", booking.Reference()),
			models.CategoryBooking, booking.ID, models.PriorityNormal)

	case models.StatusCancelled:
		if reason == "" {
			if actor.Role == models.RoleStaff {
				reason = models.ProviderRejectionReason
			} else {
				reason = models.DefaultCancellationReason
			}
		}
		cancelledBy := models.CancelledByStaff
		if actor.Role == models.RoleStudent {
			cancelledBy = models.CancelledByRider
		}
		if err := s.cancelBooking(ctx, booking, ride, reason, cancelledBy); err != nil {
			return nil, err
		}
		counterparty := booking.RiderID
		if actor.Role == models.RoleStudent {
			counterparty = ride.ProviderID
		}
		s.notify(ctx, counterparty, "Booking cancelled",
			fmt.Sprintf("Booking %s was cancelled: %s", booking.Reference(), reason),
			models.CategoryBooking, booking.ID, models.PriorityNormal)
		if actor.Role == models.RoleStaff {
			s.enqueueMail(ctx, models.MailBookingRejection, booking, ride, reason)
		}

	default:
		return nil, fmt.Errorf("%w: %s is not a requestable status", ErrInvalidTransition, newStatus)
	}

	updated, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.emitBooking(ctx, events.EventBookingStatusUpdated, updated, reason,
		events.UserTopic(booking.RiderID), events.UserTopic(ride.ProviderID), events.RideTopic(ride.ID))
	return updated, nil
}

// CancelOwnBooking is the rider-facing cancellation path.
func (s *BookingService) CancelOwnBooking(ctx context.Context, bookingID, riderID int64, reason string) (*models.Booking, error) {
	booking, ride, err := s.loadBookingAndRide(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RiderID != riderID {
		return nil, ErrForbidden
	}
	if booking.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot cancel %s booking", ErrInvalidTransition, booking.Status)
	}
	if reason == "" {
		reason = models.DefaultCancellationReason
	}

	if err := s.cancelBooking(ctx, booking, ride, reason, models.CancelledByRider); err != nil {
		return nil, err
	}

	s.notify(ctx, ride.ProviderID, "Booking cancelled",
		fmt.Sprintf("Booking %s was cancelled by the rider: %s", booking.Reference(), reason),
		models.CategoryBooking, booking.ID, models.PriorityNormal)

	updated, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.emitBooking(ctx, events.EventBookingStatusUpdated, updated, reason,
		events.UserTopic(ride.ProviderID), events.RideTopic(ride.ID))
	return updated, nil
}

// ConfirmPayment applies an external payment result to a booking reference.
// Success confirms a pending booking and marks it paid; failure leaves the
// booking pending with a failed payment status. Replays are no-ops.
func (s *BookingService) ConfirmPayment(ctx context.Context, reference string, success bool) (*models.Booking, error) {
	id, err := models.ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	booking, ride, err := s.loadBookingAndRide(ctx, id)
	if err != nil {
		return nil, err
	}

	if !success {
		if booking.PaymentStatus != models.PaymentFailed {
			if err := s.store.UpdatePaymentStatus(ctx, id, models.PaymentFailed); err != nil {
				return nil, err
			}
		}
		s.notify(ctx, booking.RiderID, "Payment failed",
			fmt.Sprintf("Payment for booking %s failed; your booking is still pending", booking.Reference()),
			models.CategoryPayment, booking.ID, models.PriorityHigh)
		return s.store.GetBooking(ctx, id)
	}

	switch {
	case booking.Status == models.StatusPending:
		if err := s.store.ConfirmBooking(ctx, id); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return nil, ErrConflict
			}
			return nil, err
		}
		if err := s.store.UpdatePaymentStatus(ctx, id, models.PaymentPaid); err != nil {
			return nil, err
		}
	case booking.Status == models.StatusConfirmed && booking.PaymentStatus != models.PaymentPaid:
		if err := s.store.UpdatePaymentStatus(ctx, id, models.PaymentPaid); err != nil {
			return nil, err
		}
	default:
		// Replayed or late webhook for a settled booking.
		return booking, nil
	}

	updated, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, booking.RiderID, "Booking confirmed",
		fmt.Sprintf("Payment received; booking %s is confirmed", booking.Reference()),
		models.CategoryPayment, booking.ID, models.PriorityNormal)
	s.emitBooking(ctx, events.EventBookingStatusUpdated, updated, "",
		events.UserTopic(booking.RiderID), events.UserTopic(ride.ProviderID), events.RideTopic(ride.ID))
	s.enqueueMail(ctx, models.MailBookingConfirmation, updated, ride, "")

	return updated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) ListRiderBookings(ctx context.Context, riderID int64) ([]*models.Booking, error) {
	return s.store.ListRiderBookings(ctx, riderID)
}

// cancelBooking performs the guarded cancellation plus the conditional seat
// refund. Seats go back only while the ride is still active; completed or
// expired rides keep their consumed inventory.
func (s *BookingService) cancelBooking(ctx context.Context, booking *models.Booking, ride *models.Ride, reason, cancelledBy string) error {
	if !booking.CanTransitionTo(models.StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel %s booking", ErrInvalidTransition, booking.Status)
	}

	if err := s.store.CancelBooking(ctx, booking.ID, reason, cancelledBy); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return ErrConflict
		}
		return err
	}

	metrics.IncBookingCancelled()

	if ride.Status == models.RideStatusActive {
		if err := s.store.RefundSeats(ctx, ride.ID, booking.SeatsBooked); err != nil {
			// The booking is already cancelled; a refund failure must be
			// visible in logs but cannot be rolled back here.
			s.logger.Error().Err(err).Int64("ride_id", ride.ID).Int64("booking_id", booking.ID).
				Msg("seat refund failed after cancellation")
		}
	}
	return nil
}

func (s *BookingService) loadBookingAndRide(ctx context.Context, bookingID int64) (*models.Booking, *models.Ride, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrBookingNotFound
		}
		return nil, nil, err
	}
	ride, err := s.store.GetRide(ctx, booking.RideID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrRideNotFound
		}
		return nil, nil, err
	}
	return booking, ride, nil
}

func (s *BookingService) authorize(actor Actor, booking *models.Booking, ride *models.Ride) error {
	switch actor.Role {
	case models.RoleStaff:
		if ride.ProviderID != actor.ID {
			return ErrForbidden
		}
	case models.RoleStudent:
		if booking.RiderID != actor.ID {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

func (s *BookingService) notify(ctx context.Context, userID int64, title, message, category string, relatedID int64, priority string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, message, category, relatedID, priority)
}

func (s *BookingService) emitBooking(ctx context.Context, event string, booking *models.Booking, reason string, topics ...string) {
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
		Status:           booking.Status,
		PaymentStatus:    booking.PaymentStatus,
		Reason:           reason,
		OccurredAt:       s.clock.Now(),
	}

	for _, topic := range topics {
		if err := s.publisher.Emit(ctx, topic, event, payload); err != nil {
			s.logger.Error().Err(err).Str("event", event).Str("topic", topic).
				Int64("booking_id", booking.ID).Msg("emit event error")
		}
	}
}

func (s *BookingService) enqueueMail(ctx context.Context, taskType string, booking *models.Booking, ride *models.Ride, reason string) {
	if s.mail == nil {
		return
	}
	if booking.RiderEmail == "" {
		// No address on file; nothing to send.
		return
	}

	details := domain.MailDetails{
		BookingReference: booking.Reference(),
		RiderEmail:       booking.RiderEmail,
		RiderName:        booking.RiderName,
		PickupLocation:   ride.PickupLocation,
		Destination:      ride.Destination,
		Date:             ride.Date.Format("2006-01-02"),
		Time:             ride.Time,
		Seats:            booking.SeatsBooked,
		TotalPrice:       booking.TotalPrice,
		Reason:           reason,
	}

	if err := s.mail.EnqueueMail(ctx, taskType, booking.ID, details); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("mail enqueue error")
	}
}
