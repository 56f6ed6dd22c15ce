package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusrides/internal/database"
	"campusrides/internal/domain"
	"campusrides/internal/events"
	"campusrides/internal/models"

	"github.com/rs/zerolog"
)

// RideAttrs carries the provider-editable ride fields.
type RideAttrs struct {
	PickupLocation string
	Destination    string
	Date           time.Time
	Time           string
	TotalSeats     int64
	PricePerSeat   float64
	VehicleType    string
}

type RideService struct {
	store     domain.Store
	publisher domain.EventPublisher
	notifier  domain.Notifier
	clock     domain.Clock
	logger    *zerolog.Logger
}

func NewRideService(store domain.Store, publisher domain.EventPublisher, notifier domain.Notifier, clock domain.Clock, logger *zerolog.Logger) *RideService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &RideService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
	}
}

// CreateRide publishes a new ride with full seat availability. A departure in
// the past is rejected; if the clock crosses the departure between validation
// and persistence the ride is stored as expired instead of active.
func (s *RideService) CreateRide(ctx context.Context, providerID int64, attrs RideAttrs) (*models.Ride, error) {
	ride := &models.Ride{
		ProviderID:     providerID,
		PickupLocation: attrs.PickupLocation,
		Destination:    attrs.Destination,
		Date:           attrs.Date,
		Time:           attrs.Time,
		TotalSeats:     attrs.TotalSeats,
		AvailableSeats: attrs.TotalSeats,
		PricePerSeat:   attrs.PricePerSeat,
		VehicleType:    attrs.VehicleType,
		Status:         models.RideStatusActive,
	}

	if err := ride.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	now := s.clock.Now()
	departure, err := ride.DepartureAt(now.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !departure.After(now) {
		return nil, fmt.Errorf("%w: ride date and time must be in the future", ErrValidation)
	}

	// Boundary timing: store as expired rather than reject if the departure
	// slipped into the past since the check above.
	if ride.IsExpired(s.clock.Now()) {
		ride.Status = models.RideStatusExpired
	}

	if err := s.store.CreateRide(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// UpdateRide rewrites a ride's attributes. Only the owning provider may
// update, and only while no booking has been confirmed or completed; seats
// already held by pending bookings stay consumed under the new capacity.
func (s *RideService) UpdateRide(ctx context.Context, rideID, providerID int64, attrs RideAttrs) (*models.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.ProviderID != providerID {
		return nil, ErrForbidden
	}
	if ride.Status != models.RideStatusActive {
		return nil, fmt.Errorf("%w: cannot update %s ride", ErrInvalidTransition, ride.Status)
	}

	committed, err := s.store.CountBookingsInStatuses(ctx, rideID, models.StatusConfirmed, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if committed > 0 {
		return nil, fmt.Errorf("%w: cannot update ride with confirmed bookings", ErrValidation)
	}

	consumed := ride.TotalSeats - ride.AvailableSeats
	if attrs.TotalSeats < consumed {
		return nil, fmt.Errorf("%w: total seats below the %d already booked", ErrValidation, consumed)
	}

	fromVersion := ride.Version
	ride.PickupLocation = attrs.PickupLocation
	ride.Destination = attrs.Destination
	ride.Date = attrs.Date
	ride.Time = attrs.Time
	ride.TotalSeats = attrs.TotalSeats
	ride.AvailableSeats = attrs.TotalSeats - consumed
	ride.PricePerSeat = attrs.PricePerSeat
	ride.VehicleType = attrs.VehicleType

	if err := ride.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	now := s.clock.Now()
	departure, err := ride.DepartureAt(now.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !departure.After(now) {
		return nil, fmt.Errorf("%w: ride date and time must be in the future", ErrValidation)
	}

	if err := s.store.UpdateRideWithVersion(ctx, ride, fromVersion); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return s.getRide(ctx, rideID)
}

// CancelRide transitions an active ride to cancelled, bulk-cancels its open
// bookings, and notifies the affected riders.
func (s *RideService) CancelRide(ctx context.Context, rideID, providerID int64) (*models.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.ProviderID != providerID {
		return nil, ErrForbidden
	}
	if !ride.CanTransitionTo(models.RideStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel %s ride", ErrInvalidTransition, ride.Status)
	}

	// Snapshot open bookings before the bulk cancel so riders can be notified.
	open, err := s.store.ListOpenBookingsForRides(ctx, []int64{rideID})
	if err != nil {
		return nil, err
	}

	if err := s.store.CancelRide(ctx, rideID); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if _, err := s.store.CancelOpenBookingsForRide(ctx, rideID, models.RideCancelledReason); err != nil {
		s.logger.Error().Err(err).Int64("ride_id", rideID).Msg("bulk booking cancellation failed")
	}

	payload := events.RideEventPayload{
		RideID:         ride.ID,
		ProviderID:     ride.ProviderID,
		PickupLocation: ride.PickupLocation,
		Destination:    ride.Destination,
		Status:         models.RideStatusCancelled,
		OccurredAt:     s.clock.Now(),
	}
	s.emit(ctx, events.RideTopic(rideID), events.EventRideCancelled, payload)

	for _, b := range open {
		if s.notifier != nil {
			s.notifier.Notify(ctx, b.RiderID, "Ride cancelled",
				fmt.Sprintf("Your booking %s was cancelled because the ride was cancelled", b.Reference()),
				models.CategoryRide, ride.ID, models.PriorityHigh)
		}
		s.emit(ctx, events.UserTopic(b.RiderID), events.EventRideCancelled, payload)
	}

	return s.getRide(ctx, rideID)
}

func (s *RideService) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	return s.getRide(ctx, id)
}

func (s *RideService) ListActiveRides(ctx context.Context) ([]*models.Ride, error) {
	return s.store.ListRidesByStatus(ctx, models.RideStatusActive)
}

func (s *RideService) ListProviderRides(ctx context.Context, providerID int64) ([]*models.Ride, error) {
	return s.store.ListProviderRides(ctx, providerID)
}

// ListRideBookings returns a ride's bookings to its owning provider.
func (s *RideService) ListRideBookings(ctx context.Context, rideID, providerID int64) ([]*models.Booking, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.ProviderID != providerID {
		return nil, ErrForbidden
	}
	return s.store.ListRideBookings(ctx, rideID)
}

func (s *RideService) getRide(ctx context.Context, id int64) (*models.Ride, error) {
	ride, err := s.store.GetRide(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, err
	}
	return ride, nil
}

func (s *RideService) emit(ctx context.Context, topic, event string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, topic, event, payload); err != nil {
		s.logger.Error().Err(err).Str("event", event).Str("topic", topic).Msg("emit event error")
	}
}
