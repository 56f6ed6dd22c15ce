package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusrides/internal/config"
	"campusrides/internal/database"
	"campusrides/internal/export"
	"campusrides/internal/models"
	"campusrides/internal/service"
)

const (
	staffKey    = "staff-key"
	providerKey = "provider-key"
	riderKey    = "rider-key"
	otherKey    = "other-key"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Port: 0},
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: staffKey, Name: "dispatch", UserID: 1, Role: models.RoleStaff},
				{Key: providerKey, Name: "provider", UserID: 2, Role: models.RoleStaff},
				{Key: riderKey, Name: "rider", UserID: 10, Role: models.RoleStudent},
				{Key: otherKey, Name: "other", UserID: 11, Role: models.RoleStudent},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}

	rides := service.NewRideService(db, nil, nil, nil, &logger)
	bookings := service.NewBookingService(db, nil, nil, nil, nil, models.MaxSeats, &logger)
	notifications := service.NewNotificationService(db, &logger)
	exporter := export.New(db, t.TempDir(), &logger)

	server := NewHTTPServer(cfg, rides, bookings, notifications, exporter, &logger)
	ts := httptest.NewServer(server.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, apiKey string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func createTestRide(t *testing.T, ts *httptest.Server, seats int64) models.Ride {
	t.Helper()
	departure := time.Now().Add(72 * time.Hour)
	resp, body := doRequest(t, ts, http.MethodPost, "/api/v1/rides", providerKey, map[string]any{
		"pickup_location": "Main Gate",
		"destination":     "City Center",
		"date":            departure.Format("2006-01-02"),
		"time":            "10:00",
		"total_seats":     seats,
		"price_per_seat":  4.5,
		"vehicle_type":    models.VehicleCar,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var ride models.Ride
	require.NoError(t, json.Unmarshal(body, &ride))
	return ride
}

func TestHealthzNoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doRequest(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doRequest(t, ts, http.MethodGet, "/api/v1/rides", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, "/api/v1/rides", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRideLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ride := createTestRide(t, ts, 3)
	assert.Equal(t, models.RideStatusActive, ride.Status)
	assert.Equal(t, int64(3), ride.AvailableSeats)

	resp, body := doRequest(t, ts, http.MethodGet, "/api/v1/rides", riderKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Rides []models.Ride `json:"rides"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Len(t, listing.Rides, 1)

	resp, _ = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/rides/%d/availability", ride.ID), riderKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/rides/%d/cancel", ride.ID), riderKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "only the provider may cancel")

	resp, body = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/rides/%d/cancel", ride.ID), providerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var cancelled models.Ride
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, models.RideStatusCancelled, cancelled.Status)
}

func TestCreateRidePastDate(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doRequest(t, ts, http.MethodPost, "/api/v1/rides", providerKey, map[string]any{
		"pickup_location": "Main Gate",
		"destination":     "City Center",
		"date":            time.Now().AddDate(0, 0, -1).Format("2006-01-02"),
		"time":            "10:00",
		"total_seats":     3,
		"price_per_seat":  4.5,
		"vehicle_type":    models.VehicleCar,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingFlow(t *testing.T) {
	ts := newTestServer(t)
	ride := createTestRide(t, ts, 3)

	book := func(key string, seats int64) (*http.Response, []byte) {
		return doRequest(t, ts, http.MethodPost, "/api/v1/bookings", key, map[string]any{
			"ride_id":     ride.ID,
			"seats":       seats,
			"rider_name":  "Riley",
			"rider_email": "riley@example.edu",
		})
	}

	resp, body := book(riderKey, 2)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var booking models.Booking
	require.NoError(t, json.Unmarshal(body, &booking))
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.InDelta(t, 9.0, booking.TotalPrice, 0.001)

	// Duplicate open booking for the same rider.
	resp, _ = book(riderKey, 1)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Provider cannot book their own ride.
	resp, _ = book(providerKey, 1)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Too many seats for the remaining inventory.
	resp, _ = doRequest(t, ts, http.MethodPost, "/api/v1/bookings", staffKey, map[string]any{
		"ride_id":     ride.ID,
		"seats":       int64(2),
		"rider_name":  "Dana",
		"rider_email": "dana@example.edu",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Staff who do not own the ride cannot confirm.
	resp, _ = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID), staffKey,
		map[string]any{"status": models.StatusConfirmed})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The ride provider confirms.
	resp, body = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID), providerKey,
		map[string]any{"status": models.StatusConfirmed})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var confirmed models.Booking
	require.NoError(t, json.Unmarshal(body, &confirmed))
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	// Rider cannot confirm their own booking.
	resp, _ = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID), riderKey,
		map[string]any{"status": models.StatusConfirmed})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Rider cancels and seats come back.
	resp, body = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", booking.ID), riderKey,
		map[string]any{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/rides/%d/availability", ride.ID), riderKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var avail struct {
		AvailableSeats int64 `json:"available_seats"`
	}
	require.NoError(t, json.Unmarshal(body, &avail))
	assert.Equal(t, int64(3), avail.AvailableSeats)

	// Cancelling a terminal booking is rejected.
	resp, _ = doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", booking.ID), riderKey,
		map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBookingVisibility(t *testing.T) {
	ts := newTestServer(t)
	ride := createTestRide(t, ts, 2)

	resp, body := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", riderKey, map[string]any{
		"ride_id":     ride.ID,
		"seats":       int64(1),
		"rider_name":  "Riley",
		"rider_email": "riley@example.edu",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var booking models.Booking
	require.NoError(t, json.Unmarshal(body, &booking))

	// Another student cannot read it; staff can.
	resp, _ = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), otherKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), staffKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Ride bookings listing is provider-only.
	resp, _ = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/rides/%d/bookings", ride.ID), riderKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/rides/%d/bookings", ride.ID), providerKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPaymentWebhook(t *testing.T) {
	ts := newTestServer(t)
	ride := createTestRide(t, ts, 2)

	resp, body := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", riderKey, map[string]any{
		"ride_id":     ride.ID,
		"seats":       int64(1),
		"rider_name":  "Riley",
		"rider_email": "riley@example.edu",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var booking models.Booking
	require.NoError(t, json.Unmarshal(body, &booking))

	// No API key needed: provider callbacks authenticate by reference.
	resp, body = doRequest(t, ts, http.MethodPost, "/api/v1/payments/webhook", "", map[string]any{
		"booking_reference": booking.Reference(),
		"status":            "success",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var paid models.Booking
	require.NoError(t, json.Unmarshal(body, &paid))
	assert.Equal(t, models.StatusConfirmed, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)

	resp, _ = doRequest(t, ts, http.MethodPost, "/api/v1/payments/webhook", "", map[string]any{
		"booking_reference": "BK-FFFFFF",
		"status":            "success",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodPost, "/api/v1/payments/webhook", "", map[string]any{
		"booking_reference": booking.Reference(),
		"status":            "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportStaffOnly(t *testing.T) {
	ts := newTestServer(t)
	createTestRide(t, ts, 2)

	start := time.Now().Format("2006-01-02")
	end := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	path := fmt.Sprintf("/api/v1/exports/schedule?start=%s&end=%s", start, end)

	resp, _ := doRequest(t, ts, http.MethodGet, path, riderKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := doRequest(t, ts, http.MethodGet, path, staffKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestRateLimit(t *testing.T) {
	auth := NewAuth(config.APIConfig{
		Auth:      config.APIAuthConfig{APIKeys: []config.APIClientKey{{Key: "k", UserID: 1, Role: models.RoleStudent}}},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	})
	lim := auth.getLimiter("k")
	assert.True(t, lim.Allow())
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())
}
