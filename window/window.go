// Package window implements the time-window predicates used when querying
// events, including the local-day comparison for all-day events.
package window

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-series/event"
)

// day is the slack added on each side by Widen. All-day events are stored at UTC
// midnight, so a local-day query can sit up to a day off their instants.
const day = 24 * time.Hour

// Range is a query window. Either side may be absent, which leaves it open.
type Range struct {
	Start mo.Option[time.Time]
	End   mo.Option[time.Time]
}

// New returns a closed window [start, end].
func New(start, end time.Time) Range {
	return Range{Start: mo.Some(start), End: mo.Some(end)}
}

// Open returns a window with both sides open.
func Open() Range {
	return Range{Start: mo.None[time.Time](), End: mo.None[time.Time]()}
}

// Widen returns r extended by one day on each present side.
func (r Range) Widen() Range {
	out := r
	if start, ok := r.Start.Get(); ok {
		out.Start = mo.Some(start.Add(-day))
	}
	if end, ok := r.End.Get(); ok {
		out.End = mo.Some(end.Add(day))
	}
	return out
}

// Matches is the exact window test applied after expansion.
//
// Timed events match when end >= window start and start <= window end. All-day
// events compare calendar dates instead: the event's dates are read in UTC, the
// window's in loc.
func (r Range) Matches(start, end time.Time, allDay bool, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}

	if allDay {
		startDay, endDay := civil(start, time.UTC), civil(end, time.UTC)
		if ws, ok := r.Start.Get(); ok && endDay.Before(civil(ws, loc)) {
			return false
		}
		if we, ok := r.End.Get(); ok && startDay.After(civil(we, loc)) {
			return false
		}
		return true
	}

	if ws, ok := r.Start.Get(); ok && end.Before(ws) {
		return false
	}
	if we, ok := r.End.Get(); ok && start.After(we) {
		return false
	}
	return true
}

// MatchesView applies Matches to an occurrence or master view.
func (r Range) MatchesView(v event.View, loc *time.Location) bool {
	return r.Matches(v.StartDate(), v.EndDate(), v.AllDay(), loc)
}

// Candidate is the storage predicate run against an already widened window.
// Single events must overlap it; recurring masters must start before its end and
// not have ended before its start.
func (r Range) Candidate(ev *event.Event) bool {
	if !ev.IsRecurring() {
		if ws, ok := r.Start.Get(); ok && ev.EndDate.Before(ws) {
			return false
		}
		if we, ok := r.End.Get(); ok && ev.StartDate.After(we) {
			return false
		}
		return true
	}

	if we, ok := r.End.Get(); ok && ev.StartDate.After(we) {
		return false
	}
	if ws, ok := r.Start.Get(); ok && ev.RecurrenceUntil != nil && ev.RecurrenceUntil.Before(ws) {
		return false
	}
	return true
}

// RecurrencePrefilter is the fast predicate for recurrence-only queries: the
// event is recurring, starts strictly before the window end and its until, if
// any, lies strictly after the window start.
func (r Range) RecurrencePrefilter(ev *event.Event) bool {
	if !ev.IsRecurring() {
		return false
	}
	if we, ok := r.End.Get(); ok && !ev.StartDate.Before(we) {
		return false
	}
	if ws, ok := r.Start.Get(); ok && ev.RecurrenceUntil != nil && !ev.RecurrenceUntil.After(ws) {
		return false
	}
	return true
}

// civil truncates t to its calendar date in loc, expressed as UTC midnight.
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
