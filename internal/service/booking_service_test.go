package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusrides/internal/database"
	"campusrides/internal/domain"
	"campusrides/internal/events"
	"campusrides/internal/models"
	"campusrides/internal/worker"
)

type stubPublisher struct {
	mu      sync.Mutex
	emitted []string
}

func (p *stubPublisher) Emit(_ context.Context, topic, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitted = append(p.emitted, topic+"/"+event)
	return nil
}

func (p *stubPublisher) count(entry string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.emitted {
		if e == entry {
			n++
		}
	}
	return n
}

type stubNotifier struct {
	mu     sync.Mutex
	titles map[int64][]string
}

func (n *stubNotifier) Notify(_ context.Context, userID int64, title, _, _ string, _ int64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.titles == nil {
		n.titles = make(map[int64][]string)
	}
	n.titles[userID] = append(n.titles[userID], title)
}

func (n *stubNotifier) forUser(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles[userID]...)
}

type stubMail struct {
	mu    sync.Mutex
	tasks []string
}

func (m *stubMail) EnqueueMail(_ context.Context, taskType string, _ int64, _ domain.MailDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, taskType)
	return nil
}

func (m *stubMail) enqueued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tasks...)
}

type testEnv struct {
	db        *database.DB
	bookings  *BookingService
	rides     *RideService
	publisher *stubPublisher
	notifier  *stubNotifier
	mail      *stubMail
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	publisher := &stubPublisher{}
	notifier := &stubNotifier{}
	mail := &stubMail{}
	return &testEnv{
		db:        db,
		bookings:  NewBookingService(db, publisher, notifier, mail, nil, models.MaxSeats, &logger),
		rides:     NewRideService(db, publisher, notifier, nil, &logger),
		publisher: publisher,
		notifier:  notifier,
		mail:      mail,
	}
}

// seedRide inserts an active ride directly, bypassing service validation.
func seedRide(t *testing.T, db *database.DB, providerID, seats int64) *models.Ride {
	t.Helper()
	departure := time.Now().Add(48 * time.Hour)
	ride := &models.Ride{
		ProviderID:     providerID,
		PickupLocation: "North Campus",
		Destination:    "Downtown",
		Date:           departure,
		Time:           departure.Format("15:04"),
		TotalSeats:     seats,
		AvailableSeats: seats,
		PricePerSeat:   4.5,
		VehicleType:    models.VehicleCar,
		Status:         models.RideStatusActive,
	}
	require.NoError(t, db.CreateRide(context.Background(), ride))
	return ride
}

func bookingReq(rideID, riderID, seats int64) CreateBookingRequest {
	return CreateBookingRequest{
		RideID:     rideID,
		RiderID:    riderID,
		Seats:      seats,
		RiderName:  "Sam Rider",
		RiderEmail: "sam@campus.edu",
	}
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)

	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 2))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, models.PaymentPending, booking.PaymentStatus)
	assert.Equal(t, 9.0, booking.TotalPrice)

	got, err := env.db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AvailableSeats)

	assert.Contains(t, env.notifier.forUser(1), "New booking")
	assert.Equal(t, 1, env.publisher.count(events.UserTopic(1)+"/"+events.EventNewBooking))
	assert.Equal(t, 1, env.publisher.count(events.RideTopic(ride.ID)+"/"+events.EventNewBooking))
	assert.Equal(t, []string{models.MailBookingReceipt}, env.mail.enqueued())
}

func TestCreateBookingPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 2)

	cases := []struct {
		name string
		req  CreateBookingRequest
		want error
	}{
		{"zero seats", bookingReq(ride.ID, 10, 0), ErrValidation},
		{"too many seats", bookingReq(ride.ID, 10, models.MaxSeats+1), ErrValidation},
		{"unknown ride", bookingReq(9999, 10, 1), ErrRideNotFound},
		{"own ride", bookingReq(ride.ID, 1, 1), ErrOwnRide},
		{"not enough seats", bookingReq(ride.ID, 10, 3), ErrNotEnoughSeats},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.bookings.CreateBooking(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)
	_, err = env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	cancelled := seedRide(t, env.db, 1, 2)
	require.NoError(t, env.db.CancelRide(ctx, cancelled.ID))
	_, err = env.bookings.CreateBooking(ctx, bookingReq(cancelled.ID, 10, 1))
	assert.ErrorIs(t, err, ErrRideNotActive)
}

func TestCreateBookingConfiguredSeatCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 6)

	logger := zerolog.Nop()
	capped := NewBookingService(env.db, nil, nil, nil, nil, 2, &logger)

	_, err := capped.CreateBooking(ctx, bookingReq(ride.ID, 10, 3))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = capped.CreateBooking(ctx, bookingReq(ride.ID, 10, 2))
	require.NoError(t, err)
}

// The mail pipeline end to end: booking creation, payment confirmation and
// staff rejection must each leave an outbox row addressed to the rider.
func TestBookingMailsReachOutbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	enqueuer := worker.NewMailWorker(env.db, nil, nil, worker.RetryPolicy{}, &logger)
	svc := NewBookingService(env.db, nil, nil, enqueuer, nil, models.MaxSeats, &logger)

	ride := seedRide(t, env.db, 1, 4)
	booking, err := svc.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, booking.Reference(), true)
	require.NoError(t, err)

	rejectable, err := svc.CreateBooking(ctx, bookingReq(ride.ID, 11, 1))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, rejectable.ID, Actor{ID: 1, Role: models.RoleStaff}, models.StatusCancelled, "")
	require.NoError(t, err)

	tasks, err := env.db.GetPendingMailTasks(ctx, 10)
	require.NoError(t, err)

	types := make([]string, 0, len(tasks))
	for _, task := range tasks {
		types = append(types, task.TaskType)

		var details domain.MailDetails
		require.NoError(t, json.Unmarshal([]byte(task.Payload), &details))
		assert.Equal(t, "sam@campus.edu", details.RiderEmail)
		assert.Equal(t, "Sam Rider", details.RiderName)
	}
	assert.Contains(t, types, models.MailBookingReceipt)
	assert.Contains(t, types, models.MailBookingConfirmation)
	assert.Contains(t, types, models.MailBookingRejection)
}

func TestUpdateStatusConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)

	provider := Actor{ID: 1, Role: models.RoleStaff}

	// Only the owning provider confirms; the rider cannot.
	_, err = env.bookings.UpdateStatus(ctx, booking.ID, Actor{ID: 10, Role: models.RoleStudent}, models.StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.bookings.UpdateStatus(ctx, booking.ID, Actor{ID: 2, Role: models.RoleStaff}, models.StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.bookings.UpdateStatus(ctx, booking.ID, provider, models.StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	assert.Contains(t, env.notifier.forUser(10), "Booking confirmed")

	_, err = env.bookings.UpdateStatus(ctx, booking.ID, provider, models.StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Completion is sweep-driven, never requestable.
	_, err = env.bookings.UpdateStatus(ctx, booking.ID, provider, models.StatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusStaffRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 2))
	require.NoError(t, err)

	updated, err := env.bookings.UpdateStatus(ctx, booking.ID, Actor{ID: 1, Role: models.RoleStaff}, models.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, models.ProviderRejectionReason, updated.CancellationReason)
	assert.Equal(t, models.CancelledByStaff, updated.CancelledBy)

	// Rejection refunds the held seats and emails the rider.
	got, err := env.db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.AvailableSeats)
	assert.Contains(t, env.mail.enqueued(), models.MailBookingRejection)
	assert.Contains(t, env.notifier.forUser(10), "Booking cancelled")
}

func TestCancelOwnBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 2))
	require.NoError(t, err)

	_, err = env.bookings.CancelOwnBooking(ctx, booking.ID, 11, "not mine")
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.bookings.CancelOwnBooking(ctx, booking.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, models.DefaultCancellationReason, updated.CancellationReason)
	assert.Equal(t, models.CancelledByRider, updated.CancelledBy)

	got, err := env.db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.AvailableSeats)
	assert.Contains(t, env.notifier.forUser(1), "Booking cancelled")

	_, err = env.bookings.CancelOwnBooking(ctx, booking.ID, 10, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelBookingNoRefundOnExpiredRide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 2))
	require.NoError(t, err)

	n, err := env.db.MarkRidesExpired(ctx, []int64{ride.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = env.bookings.CancelOwnBooking(ctx, booking.ID, 10, "missed it")
	require.NoError(t, err)

	// Expired rides keep their consumed inventory.
	got, err := env.db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AvailableSeats)
}

func TestConfirmPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)

	_, err = env.bookings.ConfirmPayment(ctx, "nonsense", true)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.bookings.ConfirmPayment(ctx, "BK-0FFFFF", true)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	updated, err := env.bookings.ConfirmPayment(ctx, booking.Reference(), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	assert.Contains(t, env.mail.enqueued(), models.MailBookingConfirmation)

	// Replays of a settled payment are no-ops.
	mails := len(env.mail.enqueued())
	replayed, err := env.bookings.ConfirmPayment(ctx, booking.Reference(), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, replayed.Status)
	assert.Len(t, env.mail.enqueued(), mails)
}

func TestConfirmPaymentFailureThenRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)

	failed, err := env.bookings.ConfirmPayment(ctx, booking.Reference(), false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, failed.Status)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
	assert.Contains(t, env.notifier.forUser(10), "Payment failed")

	// A later successful attempt still confirms the pending booking.
	retried, err := env.bookings.ConfirmPayment(ctx, booking.Reference(), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, retried.Status)
	assert.Equal(t, models.PaymentPaid, retried.PaymentStatus)
}

func TestConfirmPaymentMarksConfirmedBookingPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 4)
	booking, err := env.bookings.CreateBooking(ctx, bookingReq(ride.ID, 10, 1))
	require.NoError(t, err)

	_, err = env.bookings.UpdateStatus(ctx, booking.ID, Actor{ID: 1, Role: models.RoleStaff}, models.StatusConfirmed, "")
	require.NoError(t, err)

	updated, err := env.bookings.ConfirmPayment(ctx, booking.Reference(), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
}

func TestListRiderBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := seedRide(t, env.db, 1, 6)

	for i := int64(0); i < 3; i++ {
		req := bookingReq(ride.ID, 10+i, 1)
		req.RiderEmail = fmt.Sprintf("rider%d@campus.edu", i)
		_, err := env.bookings.CreateBooking(ctx, req)
		require.NoError(t, err)
	}

	mine, err := env.bookings.ListRiderBookings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(10), mine[0].RiderID)
}
