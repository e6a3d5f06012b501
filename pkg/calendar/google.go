package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const googleTokenURI = "https://oauth2.googleapis.com/token"

// GoogleConfig carries the refresh-token credentials for the Google
// Calendar backend. All three fields are required.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// CalendarID defaults to "primary".
	CalendarID string
}

// Complete reports whether every credential is present.
func (c GoogleConfig) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// GoogleStore talks to the Google Calendar API. On any API failure it logs
// a warning and degrades to the fallback store for the rest of the process;
// the assistant keeps working offline.
type GoogleStore struct {
	mu         sync.Mutex
	service    *gcal.Service
	calendarID string
	fallback   Store
	defaults   Defaults
	log        *slog.Logger
}

// NewGoogleStore builds the API client. fallback must not be nil.
func NewGoogleStore(ctx context.Context, cfg GoogleConfig, fallback Store, defaults Defaults, logger *slog.Logger) (*GoogleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Complete() {
		return nil, fmt.Errorf("calendar: google credentials incomplete")
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURI},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar: build google service: %w", err)
	}

	return &GoogleStore{
		service:    service,
		calendarID: cfg.CalendarID,
		fallback:   fallback,
		defaults:   defaults.normalize(),
		log:        logger.With("component", "calendar.google"),
	}, nil
}

// degrade drops the API client after a failure. One-way for the process
// lifetime.
func (s *GoogleStore) degrade(op string, err error) {
	s.log.Warn("google calendar call failed, using local store from now on",
		"op", op, "error", err)
	s.mu.Lock()
	s.service = nil
	s.mu.Unlock()
}

func (s *GoogleStore) api() *gcal.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service
}

func (s *GoogleStore) Upsert(title string, start time.Time, durationMinutes, reminderOverrideMinutes int) (Event, error) {
	evt := newEvent(title, start, durationMinutes, reminderOverrideMinutes, s.defaults)

	if api := s.api(); api != nil {
		body := &gcal.Event{
			Summary: evt.Title,
			Start:   &gcal.EventDateTime{DateTime: evt.Start.Format(time.RFC3339)},
			End:     &gcal.EventDateTime{DateTime: evt.End.Format(time.RFC3339)},
			Reminders: &gcal.EventReminders{
				UseDefault:      false,
				ForceSendFields: []string{"UseDefault"},
				Overrides: []*gcal.EventReminder{
					{Method: "popup", Minutes: int64(evt.ReminderMinutes)},
				},
			},
		}
		created, err := api.Events.Insert(s.calendarID, body).Do()
		if err != nil {
			s.degrade("insert", err)
		} else {
			evt.ID = created.Id
			s.log.Info("scheduled event", "title", evt.Title, "start", evt.Start)
			return evt, nil
		}
	}

	return s.fallback.Upsert(title, start, durationMinutes, reminderOverrideMinutes)
}

func (s *GoogleStore) Delete(eventID string) error {
	if api := s.api(); api != nil {
		if err := api.Events.Delete(s.calendarID, eventID).Do(); err != nil {
			s.degrade("delete", err)
		} else {
			return nil
		}
	}
	return s.fallback.Delete(eventID)
}

func (s *GoogleStore) FindByTitle(title string) (Event, error) {
	if api := s.api(); api != nil {
		events, err := s.listAPI(time.Now(), nil)
		if err != nil {
			s.degrade("find", err)
		} else {
			for _, evt := range events {
				if evt.Title == title {
					return evt, nil
				}
			}
			return Event{}, ErrNotFound
		}
	}
	return s.fallback.FindByTitle(title)
}

func (s *GoogleStore) ListUpcoming(ref time.Time) ([]Event, error) {
	if api := s.api(); api != nil {
		events, err := s.listAPI(ref, nil)
		if err != nil {
			s.degrade("list", err)
		} else {
			return events, nil
		}
	}
	return s.fallback.ListUpcoming(ref)
}

func (s *GoogleStore) ListRange(from, to time.Time) ([]Event, error) {
	if api := s.api(); api != nil {
		events, err := s.listAPI(from, &to)
		if err != nil {
			s.degrade("list_range", err)
		} else {
			return events, nil
		}
	}
	return s.fallback.ListRange(from, to)
}

func (s *GoogleStore) listAPI(from time.Time, to *time.Time) ([]Event, error) {
	api := s.api()
	if api == nil {
		return nil, fmt.Errorf("calendar: google service degraded")
	}
	call := api.Events.List(s.calendarID).
		TimeMin(from.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(50)
	if to != nil {
		call = call.TimeMax(to.UTC().Format(time.RFC3339))
	}

	resp, err := call.Do()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		evt, ok := s.fromAPIItem(item)
		if ok {
			events = append(events, evt)
		}
	}
	return events, nil
}

func (s *GoogleStore) fromAPIItem(item *gcal.Event) (Event, bool) {
	start, ok := parseAPITime(item.Start)
	if !ok {
		return Event{}, false
	}
	end, ok := parseAPITime(item.End)
	if !ok {
		end = start
	}

	reminder := s.defaults.ReminderMinutes
	if item.Reminders != nil && len(item.Reminders.Overrides) > 0 {
		reminder = int(item.Reminders.Overrides[0].Minutes)
	}

	title := item.Summary
	if title == "" {
		title = "(untitled)"
	}

	return Event{
		ID:              item.Id,
		Title:           title,
		Start:           start,
		End:             end,
		ReminderMinutes: reminder,
	}, true
}

func parseAPITime(edt *gcal.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		if ts, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return ts, true
		}
	}
	if edt.Date != "" {
		if ts, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
