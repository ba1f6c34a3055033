package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Appointment is a booked follow-up visit.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"appointment_date"`
	Time            string    `json:"appointment_time"`
	Reason          string    `json:"reason,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
}

// Repository stores appointment rows in Postgres.
type Repository struct {
	pool   PgxPool
	logger *logging.Logger
	tracer trace.Tracer
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool, logger *logging.Logger) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("intake.appointments"),
	}
}

// Insert writes the appointment row, assigning its id.
func (r *Repository) Insert(ctx context.Context, appt *Appointment) error {
	ctx, span := r.tracer.Start(ctx, "appointments.insert")
	defer span.End()

	appt.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, appointment_date, appointment_time, reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, appt.ID, appt.PatientID, appt.Date, appt.Time, appt.Reason, appt.Notes)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// SetCalendarEvent records the booked calendar event against the row.
func (r *Repository) SetCalendarEvent(ctx context.Context, apptID uuid.UUID, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments SET calendar_event_id = $2 WHERE id = $1
	`, apptID, eventID)
	if err != nil {
		return fmt.Errorf("appointments: set calendar event: %w", err)
	}
	return nil
}
