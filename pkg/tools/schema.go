// Package tools validates and executes the calendar tool calls the remote
// model may issue during a session.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tool-call names the dispatcher accepts. create_calendar_event is a legacy
// alias for schedule_reminder; both perform the same operation.
const (
	NameScheduleReminder    = "schedule_reminder"
	NameCreateCalendarEvent = "create_calendar_event"
	NameDeleteCalendarEvent = "delete_calendar_event"
	NameListCalendarEvents  = "list_calendar_events"
)

// Call is the raw tool-call payload off the wire.
type Call struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ScheduleArguments are the arguments for schedule_reminder and
// create_calendar_event.
type ScheduleArguments struct {
	Title               string `json:"title"`
	DateTime            string `json:"datetime"`
	RemindBeforeMinutes int    `json:"remind_before_minutes"`
}

// DeleteArguments are the arguments for delete_calendar_event.
type DeleteArguments struct {
	Title string `json:"title"`
}

// ListArguments are the arguments for list_calendar_events. Date is
// optional; when set it must be YYYY-MM-DD.
type ListArguments struct {
	Date string `json:"date"`
}

// ValidationError reports a structurally invalid tool call. The session
// recovers from it with a spoken apology; it never crashes the receive
// loop.
type ValidationError struct {
	Call   string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tools: invalid %s call: %s: %v", e.Call, e.Reason, e.Cause)
	}
	return fmt.Sprintf("tools: invalid %s call: %s", e.Call, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// IsValidationError reports whether err is a tool-call validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(call, reason string, cause error) error {
	return &ValidationError{Call: call, Reason: reason, Cause: cause}
}

// ParseCall decodes a raw tool-call payload.
func ParseCall(data []byte) (Call, error) {
	var call Call
	if err := json.Unmarshal(data, &call); err != nil {
		return Call{}, invalid("unknown", "malformed payload", err)
	}
	if call.Name == "" {
		return Call{}, invalid("unknown", "missing name", nil)
	}
	return call, nil
}

func parseSchedule(call Call) (ScheduleArguments, time.Time, error) {
	var args ScheduleArguments
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return args, time.Time{}, invalid(call.Name, "malformed arguments", err)
	}
	if args.Title == "" {
		return args, time.Time{}, invalid(call.Name, "title is required", nil)
	}
	if args.DateTime == "" {
		return args, time.Time{}, invalid(call.Name, "datetime is required", nil)
	}
	start, err := time.Parse(time.RFC3339, args.DateTime)
	if err != nil {
		return args, time.Time{}, invalid(call.Name, "datetime must be RFC3339", err)
	}
	if args.RemindBeforeMinutes < 0 {
		return args, time.Time{}, invalid(call.Name, "remind_before_minutes must be >= 0", nil)
	}
	return args, start, nil
}

func parseDelete(call Call) (DeleteArguments, error) {
	var args DeleteArguments
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return args, invalid(call.Name, "malformed arguments", err)
	}
	if args.Title == "" {
		return args, invalid(call.Name, "title is required", nil)
	}
	return args, nil
}

func parseList(call Call) (ListArguments, error) {
	var args ListArguments
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return args, invalid(call.Name, "malformed arguments", err)
		}
	}
	return args, nil
}

// Schemas returns the function declarations registered with the remote
// session. Shapes follow the Realtime API function-tool format.
func Schemas() []map[string]any {
	return []map[string]any{
		{
			"type":        "function",
			"name":        NameScheduleReminder,
			"description": "Schedule a calendar reminder at a specific date and time.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":    map[string]any{"type": "string", "description": "Title of the event."},
					"datetime": map[string]any{"type": "string", "description": "Event start in RFC3339 format."},
					"remind_before_minutes": map[string]any{
						"type":        "integer",
						"description": "Minutes before the event to fire the reminder.",
					},
				},
				"required": []string{"title", "datetime"},
			},
		},
		{
			"type":        "function",
			"name":        NameDeleteCalendarEvent,
			"description": "Delete a calendar event by exact title. The first match wins when duplicates exist.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string", "description": "Title of the event to delete."},
				},
				"required": []string{"title"},
			},
		},
		{
			"type":        "function",
			"name":        NameListCalendarEvents,
			"description": "List calendar events, optionally for a single date (YYYY-MM-DD).",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date": map[string]any{"type": "string", "description": "Date to list events for (YYYY-MM-DD)."},
				},
				"required": []string{},
			},
		},
	}
}
