// Package calendar books intake appointments on the clinic's Google
// Calendar. Booking is best effort: callers treat a failure as a missing
// event link, never as a failed appointment.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// DefaultTimezone is the clinic's local timezone.
const DefaultTimezone = "America/New_York"

// Event describes a slot to book.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	Duration    time.Duration
}

// Booker creates a calendar event and returns its id and browser link.
type Booker interface {
	BookEvent(ctx context.Context, ev Event) (eventID, htmlLink string, err error)
}

// GoogleBooker books events through the Calendar v3 API using a refresh
// token obtained offline (see cmd/google-token).
type GoogleBooker struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
	logger     *logging.Logger
}

// GoogleConfig holds OAuth credentials for the booker.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	Timezone     string
	Logger       *logging.Logger
}

// NewGoogleBooker builds a Calendar client from a refresh token.
func NewGoogleBooker(ctx context.Context, cfg GoogleConfig) (*GoogleBooker, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("calendar: google oauth credentials missing")
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}
	return &GoogleBooker{
		svc:        svc,
		calendarID: cfg.CalendarID,
		timezone:   cfg.Timezone,
		logger:     cfg.Logger,
	}, nil
}

var _ Booker = (*GoogleBooker)(nil)

// BookEvent inserts the event and returns its id and HTML link.
func (b *GoogleBooker) BookEvent(ctx context.Context, ev Event) (string, string, error) {
	if ev.Start.IsZero() {
		return "", "", errors.New("calendar: start time required")
	}
	if ev.Duration <= 0 {
		ev.Duration = 30 * time.Minute
	}

	item := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: b.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.Start.Add(ev.Duration).Format(time.RFC3339),
			TimeZone: b.timezone,
		},
	}

	created, err := b.svc.Events.Insert(b.calendarID, item).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("calendar: insert event: %w", err)
	}
	b.logger.Info("calendar event booked", "event_id", created.Id)
	return created.Id, created.HtmlLink, nil
}
