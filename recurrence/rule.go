package recurrence

import (
	"slices"
	"time"
)

// Frequency is the base repetition unit of a Rule.
type Frequency int

const (
	FreqNone Frequency = iota
	FreqDaily
	FreqWeekly
	FreqMonthly
	FreqYearly
)

func (f Frequency) String() string {
	switch f {
	case FreqDaily:
		return "DAILY"
	case FreqWeekly:
		return "WEEKLY"
	case FreqMonthly:
		return "MONTHLY"
	case FreqYearly:
		return "YEARLY"
	default:
		return "NONE"
	}
}

// Ordinal selects the n-th weekday of a month. Its value is the BYDAY offset.
type Ordinal int

const (
	OrdinalFirst  Ordinal = 1
	OrdinalSecond Ordinal = 2
	OrdinalThird  Ordinal = 3
	OrdinalFourth Ordinal = 4
	OrdinalLast   Ordinal = -1
)

// Valid reports whether o is one of the supported ordinals.
func (o Ordinal) Valid() bool {
	switch o {
	case OrdinalFirst, OrdinalSecond, OrdinalThird, OrdinalFourth, OrdinalLast:
		return true
	}
	return false
}

func (o Ordinal) String() string {
	switch o {
	case OrdinalFirst:
		return "FIRST"
	case OrdinalSecond:
		return "SECOND"
	case OrdinalThird:
		return "THIRD"
	case OrdinalFourth:
		return "FOURTH"
	case OrdinalLast:
		return "LAST"
	default:
		return "INVALID"
	}
}

// Position is an (ordinal, weekday) pair such as "last Friday".
type Position struct {
	Ordinal Ordinal
	Weekday time.Weekday
}

// Rule is the structured form of a recurrence rule.
//
// Selectors by frequency:
//   - WEEKLY: Weekdays
//   - MONTHLY: MonthDays ("each") or MonthPosition ("at the"), not both
//   - YEARLY: Months and optionally YearPosition
type Rule struct {
	Frequency Frequency
	Interval  int

	Weekdays      []time.Weekday
	MonthDays     []int
	MonthPosition *Position
	Months        []time.Month
	YearPosition  *Position

	// Until is the last instant an occurrence may start at, in UTC.
	Until *time.Time
}

// IsCustomized reports whether the rule differs from the plain "every <unit>" rule.
func (r Rule) IsCustomized() bool {
	if r.Interval > 1 {
		return true
	}
	switch r.Frequency {
	case FreqWeekly:
		return len(r.Weekdays) > 0
	case FreqMonthly:
		return len(r.MonthDays) > 0 || r.MonthPosition != nil
	case FreqYearly:
		return len(r.Months) > 0 || r.YearPosition != nil
	}
	return false
}

// interval returns the effective interval, defaulting to 1.
func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	c := r
	c.Weekdays = slices.Clone(r.Weekdays)
	c.MonthDays = slices.Clone(r.MonthDays)
	c.Months = slices.Clone(r.Months)
	if r.MonthPosition != nil {
		p := *r.MonthPosition
		c.MonthPosition = &p
	}
	if r.YearPosition != nil {
		p := *r.YearPosition
		c.YearPosition = &p
	}
	if r.Until != nil {
		u := *r.Until
		c.Until = &u
	}
	return c
}

// WithUntil returns a copy of r bounded at until (stored in UTC).
func (r Rule) WithUntil(until time.Time) Rule {
	c := r.Clone()
	u := until.UTC()
	c.Until = &u
	return c
}

// TruncateUntil computes the UNTIL bound that ends a series just before the
// occurrence at selected: 23:59:59 of the previous day in loc, returned in UTC.
func TruncateUntil(selected time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := selected.In(loc).Date()
	return time.Date(y, m, d-1, 23, 59, 59, 0, loc).UTC()
}

// EndOfDay returns 23:59:59 UTC of t's UTC date. Date-only UNTIL values decode to it.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
