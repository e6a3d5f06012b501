// Package calendar stores and queries the reminder events chappy manages.
//
// Three backends implement the same Store contract: an in-memory map (tests
// and credential-less runs), a SQLite file (durable local storage), and the
// Google Calendar API. The Google backend degrades permanently to a local
// store when the API fails, so a flaky network never breaks the assistant.
package calendar

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an event lookup matches nothing.
var ErrNotFound = errors.New("calendar: event not found")

// Event is one scheduled reminder.
type Event struct {
	// ID uniquely identifies the event across backends.
	ID string

	// Title is the user-facing summary.
	Title string

	// Start and End bound the event.
	Start time.Time
	End   time.Time

	// ReminderMinutes is how long before Start the reminder fires.
	ReminderMinutes int
}

// Store is the calendar collaborator contract used by the tool dispatcher
// and the reminder scheduler.
type Store interface {
	// Upsert creates an event. durationMinutes and reminderOverrideMinutes
	// of 0 fall back to the store defaults.
	Upsert(title string, start time.Time, durationMinutes, reminderOverrideMinutes int) (Event, error)

	// Delete removes an event by ID. Deleting an unknown ID returns
	// ErrNotFound.
	Delete(eventID string) error

	// FindByTitle returns the event with the exact title, earliest start
	// first when duplicates exist.
	FindByTitle(title string) (Event, error)

	// ListUpcoming returns events starting at or after ref, ordered by
	// start time.
	ListUpcoming(ref time.Time) ([]Event, error)

	// ListRange returns events with start in [from, to), ordered by start
	// time.
	ListRange(from, to time.Time) ([]Event, error)
}

// Defaults carries the per-store fallback values for Upsert.
type Defaults struct {
	DurationMinutes int
	ReminderMinutes int
}

// DefaultDefaults returns the stock fallback values.
func DefaultDefaults() Defaults {
	return Defaults{DurationMinutes: 30, ReminderMinutes: 10}
}

func (d Defaults) normalize() Defaults {
	if d.DurationMinutes <= 0 {
		d.DurationMinutes = 30
	}
	if d.ReminderMinutes <= 0 {
		d.ReminderMinutes = 10
	}
	return d
}

func newEvent(title string, start time.Time, durationMinutes, reminderOverride int, d Defaults) Event {
	d = d.normalize()
	if durationMinutes <= 0 {
		durationMinutes = d.DurationMinutes
	}
	reminder := reminderOverride
	if reminder <= 0 {
		reminder = d.ReminderMinutes
	}
	return Event{
		ID:              uuid.NewString(),
		Title:           title,
		Start:           start,
		End:             start.Add(time.Duration(durationMinutes) * time.Minute),
		ReminderMinutes: reminder,
	}
}
