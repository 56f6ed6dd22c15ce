package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"campusrides/internal/config"
	"campusrides/internal/export"
	"campusrides/internal/service"
)

// HTTPServer exposes the ride and booking operations over JSON HTTP.
type HTTPServer struct {
	cfg           config.APIConfig
	rides         *service.RideService
	bookings      *service.BookingService
	notifications *service.NotificationService
	exporter      *export.Exporter
	logger        *zerolog.Logger
	server        *http.Server
	auth          *Auth
}

func NewHTTPServer(
	cfg config.APIConfig,
	rides *service.RideService,
	bookings *service.BookingService,
	notifications *service.NotificationService,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:           cfg,
		rides:         rides,
		bookings:      bookings,
		notifications: notifications,
		exporter:      exporter,
		logger:        logger,
		auth:          NewAuth(cfg),
	}

	protected := http.NewServeMux()
	protected.HandleFunc("/api/v1/rides", srv.handleRides)
	protected.HandleFunc("/api/v1/rides/", srv.handleRideSubtree)
	protected.HandleFunc("/api/v1/bookings", srv.handleBookings)
	protected.HandleFunc("/api/v1/bookings/", srv.handleBookingSubtree)
	protected.HandleFunc("/api/v1/notifications", srv.handleNotifications)
	protected.HandleFunc("/api/v1/notifications/", srv.handleNotificationRead)
	protected.HandleFunc("/api/v1/exports/schedule", srv.handleExportSchedule)

	outer := http.NewServeMux()
	outer.HandleFunc("/healthz", srv.handleHealth)
	// Payment provider callbacks carry their own reference, not an API key.
	outer.HandleFunc("/api/v1/payments/webhook", srv.handlePaymentWebhook)
	outer.Handle("/", srv.auth.Wrap(protected))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(outer),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// respondError maps service sentinel errors onto HTTP status codes.
func (s *HTTPServer) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRideNotFound), errors.Is(err, service.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrOwnRide):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotEnoughSeats),
		errors.Is(err, service.ErrAlreadyBooked),
		errors.Is(err, service.ErrRideNotActive),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
