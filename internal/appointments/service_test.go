package appointments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/harmonyclinic/intake-line/internal/calendar"
	"github.com/harmonyclinic/intake-line/internal/patients"
)

type fakeStore struct {
	inserted  []*Appointment
	insertErr error
	events    map[uuid.UUID]string
	eventErr  error
}

func (f *fakeStore) Insert(_ context.Context, appt *Appointment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	appt.ID = uuid.New()
	f.inserted = append(f.inserted, appt)
	return nil
}

func (f *fakeStore) SetCalendarEvent(_ context.Context, apptID uuid.UUID, eventID string) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	if f.events == nil {
		f.events = map[uuid.UUID]string{}
	}
	f.events[apptID] = eventID
	return nil
}

type fakeDirectory struct {
	record *patients.Record
	err    error
}

func (f *fakeDirectory) GetWithInsurance(context.Context, string) (*patients.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

type fakeBooker struct {
	event calendar.Event
	err   error
	calls int
}

func (f *fakeBooker) BookEvent(_ context.Context, ev calendar.Event) (string, string, error) {
	f.calls++
	f.event = ev
	if f.err != nil {
		return "", "", f.err
	}
	return "evt-1", "https://calendar.example/evt-1", nil
}

type fakeSMS struct {
	to, body string
	err      error
	calls    int
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) error {
	f.calls++
	f.to, f.body = to, body
	return f.err
}

func testPatient() *patients.Record {
	return &patients.Record{
		ID:    uuid.New(),
		Name:  "John Smith",
		Phone: "5551234567",
	}
}

func newTestService(store *fakeStore, dir *fakeDirectory, booker calendar.Booker, sms *fakeSMS) *Service {
	cfg := ServiceConfig{
		Store:      store,
		Patients:   dir,
		ClinicName: "Harmony Chiropractic Center",
		Timezone:   "America/New_York",
	}
	if booker != nil {
		cfg.Booker = booker
	}
	if sms != nil {
		cfg.SMS = sms
	}
	return NewService(cfg)
}

func TestConfirmHappyPath(t *testing.T) {
	store := &fakeStore{}
	booker := &fakeBooker{}
	sms := &fakeSMS{}
	svc := newTestService(store, &fakeDirectory{record: testPatient()}, booker, sms)

	res, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(),
		Date:      "2026-09-05",
		Time:      "14:30",
		Reason:    "back pain follow-up",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %d rows", len(store.inserted))
	}
	if res.AppointmentID != store.inserted[0].ID.String() {
		t.Errorf("appointment id = %q", res.AppointmentID)
	}
	if res.CalendarEventLink == nil || *res.CalendarEventLink != "https://calendar.example/evt-1" {
		t.Errorf("calendar link = %v", res.CalendarEventLink)
	}
	if got := store.events[store.inserted[0].ID]; got != "evt-1" {
		t.Errorf("stored event id = %q", got)
	}
	if sms.calls != 1 {
		t.Fatalf("sms calls = %d", sms.calls)
	}
	if sms.to != "5551234567" {
		t.Errorf("sms to = %q", sms.to)
	}
	for _, want := range []string{"John", "Harmony Chiropractic Center", "2026-09-05", "14:30"} {
		if !strings.Contains(sms.body, want) {
			t.Errorf("sms body missing %q: %q", want, sms.body)
		}
	}
}

func TestConfirmBookerGetsLocalTime(t *testing.T) {
	booker := &fakeBooker{}
	svc := newTestService(&fakeStore{}, &fakeDirectory{record: testPatient()}, booker, nil)

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(),
		Date:      "2026-09-05",
		Time:      "2:30 PM",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	want := time.Date(2026, 9, 5, 14, 30, 0, 0, loc)
	if !booker.event.Start.Equal(want) {
		t.Errorf("event start = %v, want %v", booker.event.Start, want)
	}
	if booker.event.Duration != 30*time.Minute {
		t.Errorf("event duration = %v", booker.event.Duration)
	}
}

func TestConfirmValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeDirectory{record: testPatient()}, nil, nil)
	tests := []struct {
		name string
		req  ConfirmRequest
	}{
		{"missing patient", ConfirmRequest{Date: "2026-09-05", Time: "14:30"}},
		{"missing date", ConfirmRequest{PatientID: "p1", Time: "14:30"}},
		{"missing time", ConfirmRequest{PatientID: "p1", Date: "2026-09-05"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Confirm(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestConfirmUnknownPatient(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeDirectory{err: patients.ErrNotFound}, nil, nil)
	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(), Date: "2026-09-05", Time: "14:30",
	})
	if !errors.Is(err, patients.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConfirmStorageFailureFailsRequest(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("db down")}
	sms := &fakeSMS{}
	svc := newTestService(store, &fakeDirectory{record: testPatient()}, nil, sms)

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(), Date: "2026-09-05", Time: "14:30",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if sms.calls != 0 {
		t.Errorf("sms should not fire on storage failure, calls = %d", sms.calls)
	}
}

func TestConfirmCalendarFailureDegrades(t *testing.T) {
	store := &fakeStore{}
	booker := &fakeBooker{err: errors.New("quota exceeded")}
	sms := &fakeSMS{}
	svc := newTestService(store, &fakeDirectory{record: testPatient()}, booker, sms)

	res, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(), Date: "2026-09-05", Time: "14:30",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Success {
		t.Error("confirmation should succeed despite calendar failure")
	}
	if res.CalendarEventLink != nil {
		t.Errorf("calendar link = %v, want nil", res.CalendarEventLink)
	}
	if sms.calls != 1 {
		t.Errorf("sms should still fire, calls = %d", sms.calls)
	}
}

func TestConfirmSMSFailureDegrades(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeDirectory{record: testPatient()}, nil, &fakeSMS{err: errors.New("carrier reject")})

	res, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(), Date: "2026-09-05", Time: "14:30",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Success {
		t.Error("confirmation should succeed despite sms failure")
	}
}

func TestConfirmUnparseableTimeSkipsBooking(t *testing.T) {
	booker := &fakeBooker{}
	svc := newTestService(&fakeStore{}, &fakeDirectory{record: testPatient()}, booker, nil)

	res, err := svc.Confirm(context.Background(), ConfirmRequest{
		PatientID: uuid.NewString(), Date: "next Tuesday", Time: "morning",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if booker.calls != 0 {
		t.Errorf("booker calls = %d, want 0", booker.calls)
	}
	if res.CalendarEventLink != nil {
		t.Errorf("calendar link = %v, want nil", res.CalendarEventLink)
	}
}
