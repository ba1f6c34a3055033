package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/harmonyclinic/intake-line/internal/intake"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// ErrNotFound is returned when a patient lookup misses.
var ErrNotFound = errors.New("patients: not found")

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists finalized patient intake records in Postgres.
type Repository struct {
	pool   PgxPool
	logger *logging.Logger
	tracer trace.Tracer
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool, logger *logging.Logger) *Repository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("intake.patients"),
	}
}

// Record is a joined patient+insurance row.
type Record struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email"`
	DateOfBirth       string    `json:"date_of_birth"`
	CallSID           string    `json:"call_sid"`
	InsuranceProvider string    `json:"insurance_provider,omitempty"`
	InsuranceMemberID string    `json:"insurance_member_id,omitempty"`
}

// SaveIntake stores the finalized record in one transaction: upsert the
// patient keyed on call_sid, then the insurance row if any was collected.
// The upsert makes retried commits safe; a retry lands on the same row.
func (r *Repository) SaveIntake(ctx context.Context, callSID string, fields intake.PatientFields) (string, error) {
	ctx, span := r.tracer.Start(ctx, "patients.save_intake")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("patients: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var patientID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, email, date_of_birth, call_sid)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (call_sid)
		DO UPDATE SET name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			date_of_birth = EXCLUDED.date_of_birth
		RETURNING id
	`, uuid.New(), fields.Name, fields.Phone, fields.Email, fields.DateOfBirth, callSID).Scan(&patientID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("patients: insert patient: %w", err)
	}

	if fields.Insurance.Provider != "" || fields.Insurance.MemberID != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO insurance (id, patient_id, provider, member_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (patient_id)
			DO UPDATE SET provider = EXCLUDED.provider,
				member_id = EXCLUDED.member_id
		`, uuid.New(), patientID, fields.Insurance.Provider, fields.Insurance.MemberID)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("patients: insert insurance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("patients: commit: %w", err)
	}
	return patientID.String(), nil
}

// GetWithInsurance returns the joined patient+insurance row.
func (r *Repository) GetWithInsurance(ctx context.Context, patientID string) (*Record, error) {
	id, err := uuid.Parse(patientID)
	if err != nil {
		return nil, fmt.Errorf("patients: patient id must be a UUID: %w", err)
	}

	var rec Record
	var provider, memberID pgtype.Text
	err = r.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.phone, p.email, p.date_of_birth, p.call_sid,
			i.provider, i.member_id
		FROM patients p
		LEFT JOIN insurance i ON i.patient_id = p.id
		WHERE p.id = $1
	`, id).Scan(&rec.ID, &rec.Name, &rec.Phone, &rec.Email, &rec.DateOfBirth, &rec.CallSID, &provider, &memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: load patient: %w", err)
	}
	if provider.Valid {
		rec.InsuranceProvider = provider.String
	}
	if memberID.Valid {
		rec.InsuranceMemberID = memberID.String
	}
	return &rec, nil
}

var _ intake.PatientSaver = (*Repository)(nil)
