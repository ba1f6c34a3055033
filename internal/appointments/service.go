package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harmonyclinic/intake-line/internal/calendar"
	"github.com/harmonyclinic/intake-line/internal/messaging"
	"github.com/harmonyclinic/intake-line/internal/patients"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// ErrValidation marks a request the caller can fix.
var ErrValidation = errors.New("appointments: invalid request")

// ConfirmRequest is the JSON body of the confirmation endpoint.
type ConfirmRequest struct {
	PatientID string `json:"patientId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ConfirmResult reports the stored appointment. CalendarEventLink is nil
// when booking was skipped or failed.
type ConfirmResult struct {
	Success           bool    `json:"success"`
	AppointmentID     string  `json:"appointmentId"`
	CalendarEventLink *string `json:"calendarEventLink"`
}

// Store persists appointment rows.
type Store interface {
	Insert(ctx context.Context, appt *Appointment) error
	SetCalendarEvent(ctx context.Context, apptID uuid.UUID, eventID string) error
}

// PatientDirectory looks up the patient the appointment belongs to.
type PatientDirectory interface {
	GetWithInsurance(ctx context.Context, patientID string) (*patients.Record, error)
}

// Service runs the confirmation flow: store the row, then best-effort
// calendar booking and SMS. Only a storage failure fails the request.
type Service struct {
	store      Store
	patients   PatientDirectory
	booker     calendar.Booker
	sms        messaging.SMSSender
	clinicName string
	timezone   *time.Location
	logger     *logging.Logger
}

// ServiceConfig wires the confirmation service.
type ServiceConfig struct {
	Store      Store
	Patients   PatientDirectory
	Booker     calendar.Booker
	SMS        messaging.SMSSender
	ClinicName string
	Timezone   string
	Logger     *logging.Logger
}

// NewService builds the service. Booker and SMS may be nil; those steps
// are then skipped.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("appointments: store required")
	}
	if cfg.Patients == nil {
		panic("appointments: patient directory required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc, _ = time.LoadLocation(calendar.DefaultTimezone)
	}
	return &Service{
		store:      cfg.Store,
		patients:   cfg.Patients,
		booker:     cfg.Booker,
		sms:        cfg.SMS,
		clinicName: cfg.ClinicName,
		timezone:   loc,
		logger:     cfg.Logger,
	}
}

// Confirm validates the request, stores the appointment, then attempts the
// calendar event and confirmation SMS. Calendar and SMS failures are logged
// and degrade the response, never fail it.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, fmt.Errorf("%w: patientId required", ErrValidation)
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, fmt.Errorf("%w: date required", ErrValidation)
	}
	if strings.TrimSpace(req.Time) == "" {
		return nil, fmt.Errorf("%w: time required", ErrValidation)
	}

	patient, err := s.patients.GetWithInsurance(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID: patient.ID,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	if err := s.store.Insert(ctx, appt); err != nil {
		return nil, err
	}

	result := &ConfirmResult{
		Success:       true,
		AppointmentID: appt.ID.String(),
	}

	if link := s.bookCalendar(ctx, patient, appt); link != "" {
		result.CalendarEventLink = &link
	}
	s.sendConfirmation(ctx, patient, appt)

	return result, nil
}

func (s *Service) bookCalendar(ctx context.Context, patient *patients.Record, appt *Appointment) string {
	if s.booker == nil {
		return ""
	}
	start, err := s.parseStart(appt.Date, appt.Time)
	if err != nil {
		s.logger.Warn("appointment time not bookable", "appointment_id", appt.ID, "error", err)
		return ""
	}

	summary := fmt.Sprintf("%s - %s", s.clinicName, patient.Name)
	desc := appt.Reason
	if appt.Notes != "" {
		if desc != "" {
			desc += "\n"
		}
		desc += appt.Notes
	}
	eventID, link, err := s.booker.BookEvent(ctx, calendar.Event{
		Summary:     summary,
		Description: desc,
		Start:       start,
		Duration:    30 * time.Minute,
	})
	if err != nil {
		s.logger.Error("calendar booking failed", "appointment_id", appt.ID, "error", err)
		return ""
	}
	if err := s.store.SetCalendarEvent(ctx, appt.ID, eventID); err != nil {
		s.logger.Error("calendar event not recorded", "appointment_id", appt.ID, "error", err)
	}
	return link
}

func (s *Service) sendConfirmation(ctx context.Context, patient *patients.Record, appt *Appointment) {
	if s.sms == nil || patient.Phone == "" {
		return
	}
	body := fmt.Sprintf("Hi %s, your appointment at %s is confirmed for %s at %s. See you then!",
		firstName(patient.Name), s.clinicName, appt.Date, appt.Time)
	if err := s.sms.SendSMS(ctx, patient.Phone, body); err != nil {
		s.logger.Error("confirmation sms failed", "appointment_id", appt.ID, "error", err)
	}
}

// parseStart accepts the date/time shapes the web client sends.
func (s *Service) parseStart(date, clock string) (time.Time, error) {
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range []string{
		"2006-01-02 15:04",
		"2006-01-02 3:04 PM",
		"2006-01-02 3:04PM",
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
	} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, s.timezone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("appointments: unrecognized date/time %q %q", date, clock)
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
