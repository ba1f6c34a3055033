// Package router assembles the HTTP surface of the intake line.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harmonyclinic/intake-line/internal/http/handlers"
)

// Config holds router configuration.
type Config struct {
	Voice          *handlers.VoiceHandler
	Appointments   *handlers.AppointmentsHandler
	Health         *handlers.HealthHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", cfg.Health.HandleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/voice", func(r chi.Router) {
		r.Post("/incoming", cfg.Voice.HandleIncoming)
		r.Post("/process", cfg.Voice.HandleProcess)
	})

	r.Post("/appointments/confirm", cfg.Appointments.HandleConfirm)
	r.Get("/patients/{patientID}", cfg.Appointments.HandleGetPatient)

	return r
}
