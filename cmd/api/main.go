package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/harmonyclinic/intake-line/internal/api/router"
	"github.com/harmonyclinic/intake-line/internal/appointments"
	"github.com/harmonyclinic/intake-line/internal/calendar"
	appconfig "github.com/harmonyclinic/intake-line/internal/config"
	"github.com/harmonyclinic/intake-line/internal/http/handlers"
	"github.com/harmonyclinic/intake-line/internal/intake"
	"github.com/harmonyclinic/intake-line/internal/messaging"
	"github.com/harmonyclinic/intake-line/internal/observability/metrics"
	"github.com/harmonyclinic/intake-line/internal/patients"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting intake-line API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic", cfg.ClinicName,
	)

	ctx := context.Background()

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	patientRepo := patients.NewRepository(pool, logger)
	if err := patientRepo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	apptRepo := appointments.NewRepository(pool, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	callMetrics := metrics.NewCallMetrics(registry)

	// Conversation session store
	var store intake.SessionStore
	switch cfg.SessionBackend {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store = intake.NewRedisStore(redis.NewClient(opts), cfg.SessionIdleTTL)
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
	default:
		memStore := intake.NewMemoryStore(cfg.SessionIdleTTL)
		defer memStore.Close()
		store = memStore
	}

	// Turn generator
	generator := intake.NewOpenAIClient(intake.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: float32(cfg.OpenAITemperature),
	})

	intakeSvc := intake.NewService(intake.ServiceConfig{
		Store:      store,
		Generator:  generator,
		Patients:   patientRepo,
		ClinicName: cfg.ClinicName,
		Logger:     logger,
		Metrics:    callMetrics,
	})

	// SMS
	var sms messaging.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sms = messaging.NewTwilioSender(messaging.TwilioConfig{
			AccountSID:  cfg.TwilioAccountSID,
			AuthToken:   cfg.TwilioAuthToken,
			FromNumber:  cfg.TwilioFromNumber,
			MaxAttempts: cfg.SMSRetryMaxAttempts,
			BaseDelay:   cfg.SMSRetryBaseDelay,
			Logger:      logger,
		})
	} else {
		logger.Warn("twilio credentials missing, using stub sms sender")
		sms = messaging.NewStubSMSSender(logger)
	}

	// Calendar (optional)
	var booker calendar.Booker
	if cfg.GoogleRefreshToken != "" {
		gb, err := calendar.NewGoogleBooker(ctx, calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RefreshToken: cfg.GoogleRefreshToken,
			CalendarID:   cfg.GoogleCalendarID,
			Timezone:     cfg.ClinicTimezone,
			Logger:       logger,
		})
		if err != nil {
			logger.Error("failed to build calendar client", "error", err)
			os.Exit(1)
		}
		booker = gb
	} else {
		logger.Warn("google refresh token missing, calendar booking disabled")
	}

	apptSvc := appointments.NewService(appointments.ServiceConfig{
		Store:      apptRepo,
		Patients:   patientRepo,
		Booker:     booker,
		SMS:        sms,
		ClinicName: cfg.ClinicName,
		Timezone:   cfg.ClinicTimezone,
		Logger:     logger,
	})

	// Handlers and router
	voiceHandler := handlers.NewVoiceHandler(handlers.VoiceHandlerConfig{
		Processor:  intakeSvc,
		ClinicName: cfg.ClinicName,
		Logger:     logger,
		Metrics:    callMetrics,
	})
	apptHandler := handlers.NewAppointmentsHandler(handlers.AppointmentsHandlerConfig{
		Confirmer: apptSvc,
		Patients:  patientRepo,
		Logger:    logger,
	})

	r := router.New(&router.Config{
		Voice:          voiceHandler,
		Appointments:   apptHandler,
		Health:         handlers.NewHealthHandler(),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
