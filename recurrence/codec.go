package recurrence

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	// DateFormat is used for all-day UNTIL and exception values.
	DateFormat = "20060102"
	// DateTimeFormat is used for timed UNTIL and exception values, always UTC.
	DateTimeFormat = "20060102T150405Z"
)

var weekdayCodes = [...]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// properties understood by the rule grammar
var supportedProps = map[string]bool{
	"FREQ":       true,
	"INTERVAL":   true,
	"BYDAY":      true,
	"BYMONTHDAY": true,
	"BYMONTH":    true,
	"UNTIL":      true,
}

// ParseError reports rule or exception text that could not be decoded.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Encode renders r as rule text. UNTIL is written date-only for all-day events.
// The NONE rule encodes to the empty string.
func Encode(r Rule, allDay bool) string {
	if r.Frequency == FreqNone {
		return ""
	}

	parts := []string{"FREQ=" + r.Frequency.String()}
	if r.IsCustomized() {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.interval()))
	}

	switch r.Frequency {
	case FreqWeekly:
		if len(r.Weekdays) > 0 {
			codes := make([]string, len(r.Weekdays))
			for i, wd := range r.Weekdays {
				codes[i] = weekdayCodes[wd]
			}
			parts = append(parts, "BYDAY="+strings.Join(codes, ","))
		}
	case FreqMonthly:
		if r.MonthPosition != nil {
			parts = append(parts, "BYDAY="+encodePosition(*r.MonthPosition))
		} else if len(r.MonthDays) > 0 {
			parts = append(parts, "BYMONTHDAY="+joinInts(r.MonthDays))
		}
	case FreqYearly:
		if len(r.Months) > 0 {
			months := make([]int, len(r.Months))
			for i, m := range r.Months {
				months[i] = int(m)
			}
			parts = append(parts, "BYMONTH="+joinInts(months))
		}
		if r.YearPosition != nil {
			parts = append(parts, "BYDAY="+encodePosition(*r.YearPosition))
		}
	}

	if r.Until != nil {
		if allDay {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format(DateFormat))
		} else {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format(DateTimeFormat))
		}
	}
	return strings.Join(parts, ";")
}

func encodePosition(p Position) string {
	return strconv.Itoa(int(p.Ordinal)) + weekdayCodes[p.Weekday]
}

func joinInts(values []int) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

// Decode parses rule text. Empty text yields the NONE rule. A date-only UNTIL is
// normalised to 23:59:59 UTC of that date.
func Decode(text string) (Rule, error) {
	text = strings.ToUpper(strings.TrimSpace(text))
	text = strings.TrimPrefix(text, "RRULE:")
	if text == "" {
		return Rule{}, nil
	}

	// Empty tokens, as left by a trailing ';', are dropped.
	parts := slices.DeleteFunc(strings.Split(text, ";"), func(p string) bool { return p == "" })
	text = strings.Join(parts, ";")

	dateOnlyUntil, hasFreq := false, false
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, &ParseError{Input: text, Reason: fmt.Sprintf("malformed token %q", part)}
		}
		if !supportedProps[key] {
			return Rule{}, &ParseError{Input: text, Reason: fmt.Sprintf("unsupported property %s", key)}
		}
		switch key {
		case "FREQ":
			hasFreq = true
		case "UNTIL":
			dateOnlyUntil = len(value) == len(DateFormat)
		}
	}
	if !hasFreq {
		return Rule{}, &ParseError{Input: text, Reason: "missing FREQ"}
	}

	opt, err := rrule.StrToROptionInLocation(text, time.UTC)
	if err != nil {
		return Rule{}, &ParseError{Input: text, Reason: "malformed rule", Err: err}
	}

	r := Rule{Interval: 1}
	if opt.Interval > 0 {
		r.Interval = opt.Interval
	}

	switch opt.Freq {
	case rrule.DAILY:
		r.Frequency = FreqDaily
		if len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0 {
			return Rule{}, &ParseError{Input: text, Reason: "DAILY rule does not take selectors"}
		}
	case rrule.WEEKLY:
		r.Frequency = FreqWeekly
		if len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0 {
			return Rule{}, &ParseError{Input: text, Reason: "WEEKLY rule only takes BYDAY"}
		}
		for _, wd := range opt.Byweekday {
			if wd.N() != 0 {
				return Rule{}, &ParseError{Input: text, Reason: "WEEKLY BYDAY cannot carry an ordinal"}
			}
			r.Weekdays = append(r.Weekdays, toWeekday(wd))
		}
	case rrule.MONTHLY:
		r.Frequency = FreqMonthly
		if len(opt.Bymonth) > 0 {
			return Rule{}, &ParseError{Input: text, Reason: "MONTHLY rule does not take BYMONTH"}
		}
		if len(opt.Bymonthday) > 0 && len(opt.Byweekday) > 0 {
			return Rule{}, &ParseError{Input: text, Reason: "MONTHLY rule mixes BYMONTHDAY and BYDAY"}
		}
		for _, d := range opt.Bymonthday {
			if d < 1 || d > 31 {
				return Rule{}, &ParseError{Input: text, Reason: fmt.Sprintf("month day %d out of range", d)}
			}
			r.MonthDays = append(r.MonthDays, d)
		}
		if len(opt.Byweekday) > 0 {
			pos, err := decodePosition(text, opt.Byweekday)
			if err != nil {
				return Rule{}, err
			}
			r.MonthPosition = pos
		}
	case rrule.YEARLY:
		r.Frequency = FreqYearly
		if len(opt.Bymonthday) > 0 {
			return Rule{}, &ParseError{Input: text, Reason: "YEARLY rule does not take BYMONTHDAY"}
		}
		for _, m := range opt.Bymonth {
			if m < 1 || m > 12 {
				return Rule{}, &ParseError{Input: text, Reason: fmt.Sprintf("month %d out of range", m)}
			}
			r.Months = append(r.Months, time.Month(m))
		}
		if len(opt.Byweekday) > 0 {
			pos, err := decodePosition(text, opt.Byweekday)
			if err != nil {
				return Rule{}, err
			}
			r.YearPosition = pos
		}
	default:
		return Rule{}, &ParseError{Input: text, Reason: fmt.Sprintf("unsupported frequency %v", opt.Freq)}
	}

	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		if dateOnlyUntil {
			until = EndOfDay(until)
		}
		r.Until = &until
	}
	return r, nil
}

func decodePosition(text string, days []rrule.Weekday) (*Position, error) {
	if len(days) != 1 {
		return nil, &ParseError{Input: text, Reason: "positional BYDAY takes exactly one weekday"}
	}
	ord := Ordinal(days[0].N())
	if !ord.Valid() {
		return nil, &ParseError{Input: text, Reason: fmt.Sprintf("unsupported ordinal %d", days[0].N())}
	}
	return &Position{Ordinal: ord, Weekday: toWeekday(days[0])}, nil
}

// toWeekday converts rrule's Monday-based day index.
func toWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func fromWeekday(wd time.Weekday) rrule.Weekday {
	return rruleWeekdays[wd]
}
