package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shotaro311/chappy-AI/pkg/calendar"
)

// Speaker is the outbound text path a dispatcher confirms through. The
// session controller implements it by injecting a conversation item and
// requesting a spoken response.
type Speaker interface {
	Speak(text string) error
}

// Dispatcher maps validated tool calls onto calendar operations and speaks
// exactly one confirmation per call.
type Dispatcher struct {
	store   calendar.Store
	speaker Speaker
	log     *slog.Logger
	now     func() time.Time
}

// NewDispatcher wires a dispatcher to its calendar store and speaker.
func NewDispatcher(store calendar.Store, speaker Speaker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		speaker: speaker,
		log:     logger.With("component", "tools"),
		now:     time.Now,
	}
}

// Dispatch validates and executes one tool call. A ValidationError means
// the call never reached the calendar; domain misses (unknown title, bad
// list date) are spoken, not returned.
func (d *Dispatcher) Dispatch(call Call) error {
	switch call.Name {
	case NameScheduleReminder, NameCreateCalendarEvent:
		return d.schedule(call)
	case NameDeleteCalendarEvent:
		return d.delete(call)
	case NameListCalendarEvents:
		return d.list(call)
	default:
		return invalid(call.Name, "unknown tool", nil)
	}
}

func (d *Dispatcher) schedule(call Call) error {
	args, start, err := parseSchedule(call)
	if err != nil {
		return err
	}

	evt, err := d.store.Upsert(args.Title, start, 0, args.RemindBeforeMinutes)
	if err != nil {
		return fmt.Errorf("tools: schedule %q: %w", args.Title, err)
	}

	d.log.Info("scheduled reminder", "title", evt.Title, "start", evt.Start)
	return d.say("Scheduled %q for %s. I'll remind you %d minutes before.",
		evt.Title, evt.Start.Format("Monday, January 2 at 15:04"), evt.ReminderMinutes)
}

func (d *Dispatcher) delete(call Call) error {
	args, err := parseDelete(call)
	if err != nil {
		return err
	}

	evt, err := d.store.FindByTitle(args.Title)
	if errors.Is(err, calendar.ErrNotFound) {
		return d.say("I couldn't find an event called %q.", args.Title)
	}
	if err != nil {
		return fmt.Errorf("tools: find %q: %w", args.Title, err)
	}

	if err := d.store.Delete(evt.ID); err != nil {
		return fmt.Errorf("tools: delete %q: %w", evt.Title, err)
	}

	d.log.Info("deleted event", "title", evt.Title)
	return d.say("Deleted %q.", evt.Title)
}

func (d *Dispatcher) list(call Call) error {
	args, err := parseList(call)
	if err != nil {
		return err
	}

	if args.Date == "" {
		events, err := d.store.ListUpcoming(d.now())
		if err != nil {
			return fmt.Errorf("tools: list upcoming: %w", err)
		}
		return d.sayEvents("coming up", events)
	}

	day, err := time.Parse("2006-01-02", args.Date)
	if err != nil {
		// Spoken recovery, not an error: the model sometimes produces
		// loose date strings.
		return d.say("Sorry, %q is an invalid date format. Please use year-month-day.", args.Date)
	}

	events, err := d.store.ListRange(day, day.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("tools: list %s: %w", args.Date, err)
	}
	return d.sayEvents("on "+day.Format("January 2"), events)
}

func (d *Dispatcher) sayEvents(when string, events []calendar.Event) error {
	if len(events) == 0 {
		return d.say("You have nothing %s.", when)
	}

	parts := make([]string, len(events))
	for i, evt := range events {
		parts[i] = fmt.Sprintf("%s at %s", evt.Title, evt.Start.Format("15:04"))
	}
	return d.say("You have %d event(s) %s: %s.", len(events), when, strings.Join(parts, ", "))
}

func (d *Dispatcher) say(format string, args ...any) error {
	return d.speaker.Speak(fmt.Sprintf(format, args...))
}
