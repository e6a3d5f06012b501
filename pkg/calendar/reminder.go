package calendar

import (
	"log/slog"
	"time"
)

// ReminderScheduler computes which upcoming events are due for a spoken
// reminder: those whose reminder window [start-reminder, start] contains
// the reference time, bounded by a lookahead so stale windows are skipped.
type ReminderScheduler struct {
	store     Store
	lookahead time.Duration
	log       *slog.Logger
}

// NewReminderScheduler wraps a store with the configured lookahead.
func NewReminderScheduler(store Store, lookahead time.Duration, logger *slog.Logger) *ReminderScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if lookahead <= 0 {
		lookahead = 15 * time.Minute
	}
	return &ReminderScheduler{
		store:     store,
		lookahead: lookahead,
		log:       logger.With("component", "calendar.reminders"),
	}
}

// Due returns the events whose reminder window has started at ref.
func (r *ReminderScheduler) Due(ref time.Time) ([]Event, error) {
	upcoming, err := r.store.ListUpcoming(ref)
	if err != nil {
		return nil, err
	}

	var due []Event
	for _, evt := range upcoming {
		reminderStart := evt.Start.Add(-time.Duration(evt.ReminderMinutes) * time.Minute)
		if reminderStart.After(ref) || evt.Start.Before(ref) {
			continue
		}
		if reminderStart.Before(ref.Add(-r.lookahead)) {
			continue
		}
		due = append(due, evt)
	}

	if len(due) > 0 {
		r.log.Info("reminders ready", "count", len(due))
	}
	return due, nil
}
