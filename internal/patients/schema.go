package patients

import (
	"context"
	"fmt"
)

// schemaSQL creates the intake tables if they do not already exist. The
// unique constraint on patients.call_sid is what makes SaveIntake retries
// idempotent. Appointments live here too so one bootstrap covers the store.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS patients (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	email TEXT NOT NULL,
	date_of_birth TEXT NOT NULL,
	call_sid TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS insurance (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL UNIQUE REFERENCES patients(id) ON DELETE CASCADE,
	provider TEXT NOT NULL DEFAULT '',
	member_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	appointment_date TEXT NOT NULL,
	appointment_time TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	calendar_event_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema applies the schema at startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("patients: ensure schema: %w", err)
	}
	return nil
}
