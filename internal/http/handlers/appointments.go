package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harmonyclinic/intake-line/internal/appointments"
	"github.com/harmonyclinic/intake-line/internal/patients"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// appointmentConfirmer runs the confirmation flow.
type appointmentConfirmer interface {
	Confirm(ctx context.Context, req appointments.ConfirmRequest) (*appointments.ConfirmResult, error)
}

// patientLookup loads a stored patient with insurance.
type patientLookup interface {
	GetWithInsurance(ctx context.Context, patientID string) (*patients.Record, error)
}

// AppointmentsHandler serves the appointment and patient endpoints.
type AppointmentsHandler struct {
	confirmer appointmentConfirmer
	patients  patientLookup
	logger    *logging.Logger
}

// AppointmentsHandlerConfig configures the handler.
type AppointmentsHandlerConfig struct {
	Confirmer appointmentConfirmer
	Patients  patientLookup
	Logger    *logging.Logger
}

// NewAppointmentsHandler creates the handler.
func NewAppointmentsHandler(cfg AppointmentsHandlerConfig) *AppointmentsHandler {
	if cfg.Confirmer == nil {
		panic("handlers: confirmer required")
	}
	if cfg.Patients == nil {
		panic("handlers: patient lookup required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AppointmentsHandler{
		confirmer: cfg.Confirmer,
		patients:  cfg.Patients,
		logger:    cfg.Logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleConfirm books an appointment. POST /appointments/confirm.
func (h *AppointmentsHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var req appointments.ConfirmRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	result, err := h.confirmer.Confirm(r.Context(), req)
	switch {
	case errors.Is(err, appointments.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, patients.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "patient not found"})
	case err != nil:
		h.logger.Error("appointment confirmation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleGetPatient returns the stored intake record. GET /patients/{patientID}.
func (h *AppointmentsHandler) HandleGetPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	rec, err := h.patients.GetWithInsurance(r.Context(), patientID)
	switch {
	case errors.Is(err, patients.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "patient not found"})
	case err != nil:
		h.logger.Error("patient lookup failed", "patient_id", patientID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// HealthHandler reports liveness.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// HandleHealth serves GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
