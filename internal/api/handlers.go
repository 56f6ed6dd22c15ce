package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusrides/internal/metrics"
	"campusrides/internal/models"
	"campusrides/internal/service"
)

type rideRequest struct {
	PickupLocation string  `json:"pickup_location"`
	Destination    string  `json:"destination"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	TotalSeats     int64   `json:"total_seats"`
	PricePerSeat   float64 `json:"price_per_seat"`
	VehicleType    string  `json:"vehicle_type"`
}

func (r rideRequest) attrs() (service.RideAttrs, error) {
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(r.Date), time.Local)
	if err != nil {
		return service.RideAttrs{}, err
	}
	return service.RideAttrs{
		PickupLocation: strings.TrimSpace(r.PickupLocation),
		Destination:    strings.TrimSpace(r.Destination),
		Date:           date,
		Time:           strings.TrimSpace(r.Time),
		TotalSeats:     r.TotalSeats,
		PricePerSeat:   r.PricePerSeat,
		VehicleType:    r.VehicleType,
	}, nil
}

func (s *HTTPServer) handleRides(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rides")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("mine") == "true" {
			rides, err := s.rides.ListProviderRides(r.Context(), actor.ID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"rides": rides})
			return
		}
		rides, err := s.rides.ListActiveRides(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rides": rides})

	case http.MethodPost:
		var body rideRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		attrs, err := body.attrs()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		ride, err := s.rides.CreateRide(r.Context(), actor.ID, attrs)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ride)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleRideSubtree(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rides")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}

	id, rest, err := splitIDPath(r.URL.Path, "/api/v1/rides/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ride id")
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		ride, err := s.rides.GetRide(r.Context(), id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ride)

	case rest == "" && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		var body rideRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		attrs, err := body.attrs()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		ride, err := s.rides.UpdateRide(r.Context(), id, actor.ID, attrs)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ride)

	case rest == "cancel" && r.Method == http.MethodPost:
		ride, err := s.rides.CancelRide(r.Context(), id, actor.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ride)

	case rest == "bookings" && r.Method == http.MethodGet:
		bookings, err := s.rides.ListRideBookings(r.Context(), id, actor.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	case rest == "availability" && r.Method == http.MethodGet:
		ride, err := s.rides.GetRide(r.Context(), id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ride_id":         ride.ID,
			"status":          ride.Status,
			"available_seats": ride.AvailableSeats,
			"total_seats":     ride.TotalSeats,
		})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type createBookingRequest struct {
	RideID     int64  `json:"ride_id"`
	Seats      int64  `json:"seats"`
	RiderName  string `json:"rider_name"`
	RiderEmail string `json:"rider_email"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}

	switch r.Method {
	case http.MethodGet:
		bookings, err := s.bookings.ListRiderBookings(r.Context(), actor.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	case http.MethodPost:
		var body createBookingRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		booking, err := s.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
			RideID:     body.RideID,
			RiderID:    actor.ID,
			Seats:      body.Seats,
			RiderName:  strings.TrimSpace(body.RiderName),
			RiderEmail: strings.TrimSpace(body.RiderEmail),
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, booking)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *HTTPServer) handleBookingSubtree(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}

	id, rest, err := splitIDPath(r.URL.Path, "/api/v1/bookings/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		booking, err := s.bookings.GetBooking(r.Context(), id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if actor.Role != models.RoleStaff && booking.RiderID != actor.ID {
			writeError(w, http.StatusForbidden, "not allowed to view this booking")
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case rest == "status" && r.Method == http.MethodPost:
		var body statusUpdateRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		booking, err := s.bookings.UpdateStatus(r.Context(), id, actor, body.Status, body.Reason)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case rest == "cancel" && r.Method == http.MethodPost:
		var body statusUpdateRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		booking, err := s.bookings.CancelOwnBooking(r.Context(), id, actor.ID, body.Reason)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("notifications")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	notifications, err := s.notifications.List(r.Context(), actor.ID, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *HTTPServer) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("notifications")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}

	id, rest, err := splitIDPath(r.URL.Path, "/api/v1/notifications/")
	if err != nil || rest != "read" || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := s.notifications.MarkRead(r.Context(), id, actor.ID); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

type paymentWebhookRequest struct {
	BookingReference string `json:"booking_reference"`
	Status           string `json:"status"`
}

func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payments")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body paymentWebhookRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var success bool
	switch body.Status {
	case "success":
		success = true
	case "failed":
		success = false
	default:
		writeError(w, http.StatusBadRequest, "status must be success or failed")
		return
	}

	booking, err := s.bookings.ConfirmPayment(r.Context(), body.BookingReference, success)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("exports")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	if actor.Role != models.RoleStaff {
		writeError(w, http.StatusForbidden, "staff only")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date; expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date; expected YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end date before start date")
		return
	}

	path, err := s.exporter.ExportSchedule(r.Context(), start, end)
	if err != nil {
		s.respondError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// splitIDPath parses "<prefix><id>[/<rest>]" into its id and trailing segment.
func splitIDPath(path, prefix string) (int64, string, error) {
	trimmed := strings.TrimPrefix(path, prefix)
	idPart, rest, _ := strings.Cut(trimmed, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", strconv.ErrSyntax
	}
	return id, rest, nil
}
