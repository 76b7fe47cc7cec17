package recurrence

import (
	"slices"
	"strings"
	"time"
)

// FormatDate renders t the way exception entries and occurrence keys are compared:
// the UTC date for all-day events, the UTC date-time otherwise.
func FormatDate(t time.Time, allDay bool) string {
	if allDay {
		return t.UTC().Format(DateFormat)
	}
	return t.UTC().Format(DateTimeFormat)
}

// ParseDate reverses FormatDate. A timed entry given as a bare date is accepted
// as UTC midnight.
func ParseDate(value string, allDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if allDay || len(value) == len(DateFormat) {
		t, err := time.Parse(DateFormat, value)
		if err != nil {
			return time.Time{}, &ParseError{Input: value, Reason: "malformed exception date", Err: err}
		}
		return t, nil
	}
	t, err := time.Parse(DateTimeFormat, value)
	if err != nil {
		return time.Time{}, &ParseError{Input: value, Reason: "malformed exception date-time", Err: err}
	}
	return t, nil
}

// ExceptionSet is the ordered set of dates excluded from a series. Entries are
// kept in their formatted form, so all-day sets compare by calendar date.
type ExceptionSet struct {
	allDay  bool
	entries []string
}

// NewExceptionSet returns an empty set for an event with the given all-day flag.
func NewExceptionSet(allDay bool) ExceptionSet {
	return ExceptionSet{allDay: allDay}
}

// ParseExceptionSet reads a comma separated exception field. Malformed entries
// are skipped and reported together in the returned error; the valid remainder
// is still returned.
func ParseExceptionSet(text string, allDay bool) (ExceptionSet, error) {
	set := NewExceptionSet(allDay)
	var bad []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := ParseDate(part, allDay)
		if err != nil {
			bad = append(bad, part)
			continue
		}
		set.Add(t)
	}
	if len(bad) > 0 {
		return set, &ParseError{Input: text, Reason: "skipped exception entries " + strings.Join(bad, ",")}
	}
	return set, nil
}

// Add merges t into the set. It reports whether the formatted date was new.
func (s *ExceptionSet) Add(t time.Time) bool {
	key := FormatDate(t, s.allDay)
	if slices.Contains(s.entries, key) {
		return false
	}
	s.entries = append(s.entries, key)
	return true
}

// Contains reports whether t's formatted date is excluded.
func (s ExceptionSet) Contains(t time.Time) bool {
	return s.ContainsKey(FormatDate(t, s.allDay))
}

// ContainsKey reports whether an already formatted date is excluded.
func (s ExceptionSet) ContainsKey(key string) bool {
	return slices.Contains(s.entries, key)
}

// Len returns the number of entries.
func (s ExceptionSet) Len() int {
	return len(s.entries)
}

// Dates returns the entries as instants, in insertion order.
func (s ExceptionSet) Dates() []time.Time {
	dates := make([]time.Time, 0, len(s.entries))
	for _, e := range s.entries {
		if t, err := ParseDate(e, s.allDay); err == nil {
			dates = append(dates, t)
		}
	}
	return dates
}

// String renders the set as stored: comma joined.
func (s ExceptionSet) String() string {
	return strings.Join(s.entries, ",")
}

// MergeExceptionDate appends date to an exception field if it is not already there.
func MergeExceptionDate(text string, date time.Time, allDay bool) string {
	key := FormatDate(date, allDay)
	if text == "" {
		return key
	}
	for _, part := range strings.Split(text, ",") {
		if strings.TrimSpace(part) == key {
			return text
		}
	}
	return text + "," + key
}
