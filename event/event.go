// Package event holds the calendar event model shared by the recurrence engine,
// the series editor and the storage backends.
package event

import (
	"fmt"
	"slices"
	"time"
)

// MinDuration is the shortest duration accepted for a timed event.
const MinDuration = 60 * time.Second

// Event is a persisted calendar event. A recurring event is the master of its series.
type Event struct {
	ID         string
	CalendarID string

	// UID is the stable external identifier (iCalendar UID).
	UID string

	Subject  string
	Location string
	Note     string

	// StartDate and EndDate are instants. All-day events are stored as UTC midnight,
	// EndDate being the midnight of the last day, so a one-day event has EndDate == StartDate.
	StartDate time.Time
	EndDate   time.Time
	AllDay    bool

	// TimeZone is the IANA zone the recurrence rule is evaluated in. Empty means the
	// zone configured on the engine.
	TimeZone string

	Attendees []string

	// Sequence is the RFC 5545 SEQUENCE counter, DTStamp the matching DTSTAMP.
	Sequence int
	DTStamp  time.Time

	// Owned is true if this system is the organizer. Mirrored events are never re-sequenced.
	Owned bool

	// RecurrenceRule is the encoded rule, empty for single events.
	RecurrenceRule string
	// RecurrenceExDate is the comma separated exception list.
	RecurrenceExDate string
	// RecurrenceUntil is derived from RecurrenceRule and only used for storage pre-filtering.
	RecurrenceUntil *time.Time

	// Set on an event created by editing one occurrence of a series.
	RecurrenceReferenceID   string
	RecurrenceReferenceDate string

	Deleted  bool
	Created  time.Time
	Modified time.Time
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e *Event) IsRecurring() bool {
	return e.RecurrenceRule != ""
}

// Duration returns EndDate - StartDate.
func (e *Event) Duration() time.Duration {
	return e.EndDate.Sub(e.StartDate)
}

// Zone resolves the event's time zone. All-day events always use UTC since their
// instants are stored as UTC midnight. Unknown or empty zones fall back to def.
func (e *Event) Zone(def *time.Location) *time.Location {
	if e.AllDay {
		return time.UTC
	}
	if e.TimeZone != "" {
		if loc, err := time.LoadLocation(e.TimeZone); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Attendees = slices.Clone(e.Attendees)
	if e.RecurrenceUntil != nil {
		until := *e.RecurrenceUntil
		c.RecurrenceUntil = &until
	}
	return &c
}

// Validate checks the invariants a write must satisfy.
func (e *Event) Validate() error {
	if e.CalendarID == "" {
		return &ValidationError{Field: "calendar", Reason: "calendar id is required"}
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return &ValidationError{Field: "startDate", Reason: "start and end date are required"}
	}
	if e.AllDay {
		if e.EndDate.Before(e.StartDate) {
			return &ValidationError{Field: "endDate", Reason: "all-day event ends before it starts"}
		}
		return nil
	}
	if e.EndDate.Before(e.StartDate) {
		return &ValidationError{Field: "endDate", Reason: "end date before start date"}
	}
	if e.Duration() < MinDuration {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("duration must be at least %s", MinDuration)}
	}
	return nil
}

// ValidationError rejects a write. Nothing is stored when it is returned.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
