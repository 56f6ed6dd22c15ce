package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campusrides/internal/api"
	"campusrides/internal/config"
	"campusrides/internal/database"
	"campusrides/internal/domain"
	"campusrides/internal/events"
	"campusrides/internal/export"
	"campusrides/internal/logging"
	"campusrides/internal/mailer"
	"campusrides/internal/metrics"
	"campusrides/internal/repository"
	"campusrides/internal/service"
	"campusrides/internal/sweeper"
	"campusrides/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "server").Logger()

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init error")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient := initRedis(ctx, cfg, &logger)
	publisher := events.NewPublisher(redisClient, events.NewBus(), &logger)
	notifier := service.NewNotificationService(db, &logger)

	mailEnqueuer := startMailWorker(ctx, cfg, db, redisClient, &logger)

	clock := domain.SystemClock{}
	bookingService := service.NewBookingService(db, publisher, notifier, mailEnqueuer, clock, cfg.Booking.MaxSeats, &logger)
	rideService := service.NewRideService(db, publisher, notifier, clock, &logger)
	exporter := export.New(db, cfg.Exports.Path, &logger)

	sweep := sweeper.New(db, publisher, notifier, clock, &logger,
		time.Duration(cfg.Sweeper.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Sweeper.RideCloseAfterHrs)*time.Hour)
	sweep.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		startMetricsServer(cfg.Monitoring.PrometheusPort, &logger)
	}

	if !cfg.API.Enabled {
		logger.Info().Msg("API disabled, running sweeper only")
		<-ctx.Done()
		return nil
	}

	apiServer := api.NewHTTPServer(cfg.API, rideService, bookingService, notifier, exporter, &logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown error")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory error")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create export directory error")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-process fallbacks")
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable")
	}
	return client
}

func startMailWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) domain.MailEnqueuer {
	if !cfg.SMTP.Enabled {
		logger.Info().Msg("smtp disabled, booking emails off")
		return nil
	}

	smtpMailer := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger)

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	mailWorker := worker.NewMailWorker(db, smtpMailer, redisClient, retryPolicy, logger)
	go mailWorker.Start(ctx)
	return mailWorker
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("metrics listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
