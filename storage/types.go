package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/window"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	// ErrTransaction marks a failed atomic write; nothing from it was persisted.
	ErrTransaction ErrorType = "transaction"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether any storage Error in err's chain has type t. A failed
// transaction that wraps a not-found error is therefore both.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var serr *Error
		if !errors.As(err, &serr) {
			return false
		}
		if serr.Type == t {
			return true
		}
		err = serr.Err
	}
	return false
}

// IsNotFound reports whether err wraps an ErrNotFound storage error.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// IsTransaction reports whether err wraps an ErrTransaction storage error.
func IsTransaction(err error) bool {
	return IsType(err, ErrTransaction)
}

// Calendar represents a calendar collection
type Calendar struct {
	ID          string
	Name        string
	Description string
	Color       string
	// TimeZone is the default zone for timed events without one of their own.
	TimeZone string
	Created  time.Time
	Modified time.Time
}

// Filter selects events for FindEvents.
type Filter struct {
	// Range is compared with window.Range.Candidate, or with RecurrencePrefilter
	// when OnlyRecurrence is set. Callers widen it beforehand.
	Range window.Range

	// CalendarIDs restricts the result to these calendars. Empty means all.
	CalendarIDs []string

	// OnlyRecurrence returns recurring masters only.
	OnlyRecurrence bool

	// IncludeDeleted also returns soft-deleted events.
	IncludeDeleted bool
}

// Match is the reference predicate every Store implementation must agree with.
func (f *Filter) Match(ev *event.Event) bool {
	if f == nil {
		return !ev.Deleted
	}
	if ev.Deleted && !f.IncludeDeleted {
		return false
	}
	if len(f.CalendarIDs) > 0 && !slices.Contains(f.CalendarIDs, ev.CalendarID) {
		return false
	}
	if f.OnlyRecurrence {
		return f.Range.RecurrencePrefilter(ev)
	}
	return f.Range.Candidate(ev)
}

// Store is the interface that must be implemented by storage backends.
// Implementations return *Error values.
type Store interface {
	// Calendar operations
	GetCalendar(ctx context.Context, calendarID string) (*Calendar, error)
	CreateCalendar(ctx context.Context, cal *Calendar) error

	// Event operations

	// GetEvent returns a live event by ID. Soft-deleted events are not found.
	GetEvent(ctx context.Context, eventID string) (*event.Event, error)
	FindEvents(ctx context.Context, filter *Filter) ([]*event.Event, error)
	CreateEvent(ctx context.Context, ev *event.Event) error
	UpdateEvent(ctx context.Context, ev *event.Event) error
	// DeleteEvent soft-deletes an event.
	DeleteEvent(ctx context.Context, eventID string) error

	// WithinTx runs fn against a transactional view of the store. Writes become
	// visible only if fn returns nil; any error discards all of them.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
