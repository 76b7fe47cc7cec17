package recurrence

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cyp0633/caldora-series/event"
)

// Engine expands recurring master events into occurrences. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
	logger *slog.Logger
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Cache returns the expansion cache, nil when caching is disabled.
func (e *Engine) Cache() *RecurrenceCache {
	return e.cache
}

// Horizon returns the end used for a window that is open towards the future.
func (e *Engine) Horizon(from time.Time) time.Time {
	return from.Add(e.config.OpenRangeLimit)
}

// ExpandEvent decodes the master's rule and exception field and expands it over
// [windowStart, windowEnd]. Timed series are evaluated in their own zone, or the
// engine location when they carry none. An unparsable rule is logged and yields
// no occurrences; malformed exception entries are logged and skipped.
func (e *Engine) ExpandEvent(master *event.Event, windowStart, windowEnd time.Time) []event.Occurrence {
	if !master.IsRecurring() {
		return nil
	}

	rule, err := Decode(master.RecurrenceRule)
	if err != nil {
		e.logger.Warn("skipping series with unparsable recurrence rule",
			"uid", master.UID,
			"rule", master.RecurrenceRule,
			"err", err)
		return nil
	}

	exceptions, err := ParseExceptionSet(master.RecurrenceExDate, master.AllDay)
	if err != nil {
		e.logger.Warn("ignoring malformed exception dates",
			"uid", master.UID,
			"exdate", master.RecurrenceExDate,
			"err", err)
	}

	return e.Expand(master, rule, exceptions, windowStart, windowEnd, master.Zone(e.config.Location))
}

// Expand returns the occurrences of master whose start lies in [windowStart, windowEnd],
// ascending. Only rule-derived instances are returned: the master appears (as itself,
// not a copy) only if its own start is generated by the rule. Candidates listed in
// exceptions are dropped. All-day series are evaluated in UTC, timed series in loc.
func (e *Engine) Expand(master *event.Event, rule Rule, exceptions ExceptionSet, windowStart, windowEnd time.Time, loc *time.Location) []event.Occurrence {
	if rule.Frequency == FreqNone || windowEnd.Before(windowStart) {
		return nil
	}
	if master.AllDay || loc == nil {
		loc = time.UTC
	}

	key := cacheKey{
		MasterStart: master.StartDate,
		MasterEnd:   master.EndDate,
		AllDay:      master.AllDay,
		Rule:        Encode(rule, master.AllDay),
		Exceptions:  exceptions.String(),
		Zone:        loc.String(),
		RangeStart:  windowStart,
		RangeEnd:    windowEnd,
	}

	var starts []time.Time
	cached := false
	if e.cache != nil {
		starts, cached = e.cache.get(key)
	}
	if !cached {
		starts = e.generate(master, rule, exceptions, windowStart, windowEnd, loc)
		if e.cache != nil {
			e.cache.set(key, starts)
		}
	}

	masterKey := FormatDate(master.StartDate, master.AllDay)
	out := make([]event.Occurrence, 0, len(starts))
	for _, start := range starts {
		if FormatDate(start, master.AllDay) == masterKey {
			out = append(out, event.MasterOccurrence(master))
			continue
		}
		out = append(out, event.SyntheticOccurrence(master, start))
	}
	return out
}

// HasOccurrenceInRange reports whether master has any occurrence starting in
// [rangeStart, rangeEnd]. For single events the master's own span is checked.
func (e *Engine) HasOccurrenceInRange(master *event.Event, rangeStart, rangeEnd time.Time) bool {
	if !master.IsRecurring() {
		return !master.StartDate.After(rangeEnd) && !master.EndDate.Before(rangeStart)
	}
	return len(e.ExpandEvent(master, rangeStart, rangeEnd)) > 0
}

// generate produces the non-excluded candidate starts in the window.
func (e *Engine) generate(master *event.Event, rule Rule, exceptions ExceptionSet, windowStart, windowEnd time.Time, loc *time.Location) []time.Time {
	opt := ruleOption(rule, master.StartDate.In(loc))
	fastForward(&opt, windowStart)

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		e.logger.Warn("failed to build recurrence",
			"uid", master.UID,
			"rule", Encode(rule, master.AllDay),
			"err", err)
		return nil
	}

	candidates := rr.Between(windowStart.In(loc), windowEnd.In(loc), true)

	starts := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if exceptions.Contains(c) {
			continue
		}
		starts = append(starts, c)
		if e.config.MaxOccurrences > 0 && len(starts) >= e.config.MaxOccurrences {
			e.logger.Warn("expansion truncated",
				"uid", master.UID,
				"cap", e.config.MaxOccurrences)
			break
		}
	}
	return starts
}

// ruleOption maps a Rule onto rrule-go options seeded at dtstart.
func ruleOption(r Rule, dtstart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Dtstart:  dtstart,
		Interval: r.interval(),
	}

	switch r.Frequency {
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range r.Weekdays {
			opt.Byweekday = append(opt.Byweekday, fromWeekday(wd))
		}
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
		if r.MonthPosition != nil {
			opt.Byweekday = []rrule.Weekday{positionWeekday(*r.MonthPosition)}
		} else {
			opt.Bymonthday = append(opt.Bymonthday, r.MonthDays...)
		}
	case FreqYearly:
		opt.Freq = rrule.YEARLY
		for _, m := range r.Months {
			opt.Bymonth = append(opt.Bymonth, int(m))
		}
		if r.YearPosition != nil {
			opt.Byweekday = []rrule.Weekday{positionWeekday(*r.YearPosition)}
		}
	}

	if r.Until != nil {
		opt.Until = *r.Until
	}
	return opt
}

func positionWeekday(p Position) rrule.Weekday {
	return rruleWeekdays[p.Weekday].Nth(int(p.Ordinal))
}

// fastForward moves opt.Dtstart to the start of the last whole interval cycle
// beginning at or before from, so generation cost depends on the window and not
// on how old the series is. Selectors that rrule would otherwise derive from
// Dtstart are made explicit first, including the time of day, since a seed on a
// DST-gap day is normalised to a different wall clock. The resulting sequence is
// unchanged.
func fastForward(opt *rrule.ROption, from time.Time) {
	start := opt.Dtstart
	loc := start.Location()
	from = from.In(loc)
	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}
	hour, minute, sec := start.Clock()

	switch opt.Freq {
	case rrule.DAILY:
		if !from.After(start) {
			return
		}
		if k := civilDays(start, from) / interval; k > 0 {
			pinClock(opt, hour, minute, sec)
			opt.Dtstart = start.AddDate(0, 0, k*interval)
		}

	case rrule.WEEKLY:
		if len(opt.Byweekday) == 0 {
			opt.Byweekday = []rrule.Weekday{fromWeekday(start.Weekday())}
		}
		if !from.After(start) {
			return
		}
		week := mondayOf(start)
		if k := civilDays(week, mondayOf(from)) / 7 / interval; k > 0 {
			monday := week.AddDate(0, 0, k*interval*7)
			pinClock(opt, hour, minute, sec)
			opt.Dtstart = time.Date(monday.Year(), monday.Month(), monday.Day(), hour, minute, sec, 0, loc)
		}

	case rrule.MONTHLY:
		if len(opt.Bymonthday) == 0 && len(opt.Byweekday) == 0 {
			opt.Bymonthday = []int{start.Day()}
		}
		if !from.After(start) {
			return
		}
		months := (from.Year()-start.Year())*12 + int(from.Month()) - int(start.Month())
		if k := months / interval; k > 0 {
			pinClock(opt, hour, minute, sec)
			opt.Dtstart = time.Date(start.Year(), start.Month()+time.Month(k*interval), 1, hour, minute, sec, 0, loc)
		}

	case rrule.YEARLY:
		if len(opt.Byweekday) == 0 {
			if len(opt.Bymonth) == 0 {
				opt.Bymonth = []int{int(start.Month())}
			}
			opt.Bymonthday = []int{start.Day()}
		}
		if !from.After(start) {
			return
		}
		if k := (from.Year() - start.Year()) / interval; k > 0 {
			pinClock(opt, hour, minute, sec)
			opt.Dtstart = time.Date(start.Year()+k*interval, time.January, 1, hour, minute, sec, 0, loc)
		}
	}
}

// pinClock fixes the generated time of day so it no longer follows Dtstart.
func pinClock(opt *rrule.ROption, hour, minute, sec int) {
	if len(opt.Byhour) == 0 {
		opt.Byhour = []int{hour}
	}
	if len(opt.Byminute) == 0 {
		opt.Byminute = []int{minute}
	}
	if len(opt.Bysecond) == 0 {
		opt.Bysecond = []int{sec}
	}
}

// civilDays counts calendar days from a's date to b's date.
func civilDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// mondayOf returns t moved back to the Monday of its week.
func mondayOf(t time.Time) time.Time {
	return t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
}
