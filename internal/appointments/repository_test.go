package appointments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestInsertAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock, nil)

	patientID := uuid.New()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), patientID, "2026-09-05", "14:30", "back pain", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	appt := &Appointment{
		PatientID: patientID,
		Date:      "2026-09-05",
		Time:      "14:30",
		Reason:    "back pain",
	}
	if err := repo.Insert(context.Background(), appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if appt.ID == uuid.Nil {
		t.Error("insert should assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestInsertPropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock, nil)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err = repo.Insert(context.Background(), &Appointment{PatientID: uuid.New(), Date: "2026-09-05", Time: "14:30"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSetCalendarEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock, nil)

	apptID := uuid.New()
	mock.ExpectExec("UPDATE appointments SET calendar_event_id").
		WithArgs(apptID, "evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.SetCalendarEvent(context.Background(), apptID, "evt-1"); err != nil {
		t.Fatalf("set calendar event: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
