// Package icalendar converts events to and from RFC 5545 VEVENT components.
package icalendar

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/recurrence"
)

// ProductID is written as PRODID on encoded calendars.
const ProductID = "-//caldora-series//NONSGML v1.0//EN"

const mailto = "mailto:"

// FromEvent builds the VEVENT for ev. All-day events get DATE values with an
// exclusive DTEND.
func FromEvent(ev *event.Event) *ical.Event {
	out := ical.NewEvent()
	props := out.Props

	props.SetText(ical.PropUID, ev.UID)
	props.SetDateTime(ical.PropDateTimeStamp, ev.DTStamp.UTC())
	setInt(props, ical.PropSequence, ev.Sequence)

	if ev.Subject != "" {
		props.SetText(ical.PropSummary, ev.Subject)
	}
	if ev.Location != "" {
		props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Note != "" {
		props.SetText(ical.PropDescription, ev.Note)
	}

	if ev.AllDay {
		props.SetDate(ical.PropDateTimeStart, ev.StartDate.UTC())
		props.SetDate(ical.PropDateTimeEnd, ev.EndDate.UTC().AddDate(0, 0, 1))
	} else {
		loc := ev.Zone(time.UTC)
		props.SetDateTime(ical.PropDateTimeStart, ev.StartDate.In(loc))
		props.SetDateTime(ical.PropDateTimeEnd, ev.EndDate.In(loc))
	}

	for _, addr := range ev.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = mailto + addr
		props.Add(p)
	}

	if ev.IsRecurring() {
		p := ical.NewProp(ical.PropRecurrenceRule)
		p.Value = ev.RecurrenceRule
		props.Set(p)

		// Malformed entries are dropped.
		exceptions, _ := recurrence.ParseExceptionSet(ev.RecurrenceExDate, ev.AllDay)
		if exceptions.Len() > 0 {
			props.Set(dateListProp(ical.PropExceptionDates, exceptions.String(), ev.AllDay))
		}
	}

	if ev.RecurrenceReferenceID != "" {
		props.SetText(ical.PropRelatedTo, ev.RecurrenceReferenceID)
		if ev.RecurrenceReferenceDate != "" {
			props.Set(dateListProp(ical.PropRecurrenceID, ev.RecurrenceReferenceDate, ev.AllDay))
		}
	}
	return out
}

// ToEvent reads a VEVENT. A COUNT bound is converted into the UNTIL of the last
// occurrence it allows. The returned event has no ID or calendar.
func ToEvent(comp *ical.Component) (*event.Event, error) {
	if comp.Name != ical.CompEvent {
		return nil, fmt.Errorf("component %s is not a %s", comp.Name, ical.CompEvent)
	}
	props := comp.Props

	ev := &event.Event{}
	ev.UID, _ = props.Text(ical.PropUID)
	if ev.UID == "" {
		return nil, fmt.Errorf("event has no %s", ical.PropUID)
	}
	ev.Subject, _ = props.Text(ical.PropSummary)
	ev.Location, _ = props.Text(ical.PropLocation)
	ev.Note, _ = props.Text(ical.PropDescription)

	if p := props.Get(ical.PropSequence); p != nil {
		seq, err := strconv.Atoi(strings.TrimSpace(p.Value))
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid %s: %w", ev.UID, ical.PropSequence, err)
		}
		ev.Sequence = seq
	}
	if stamp, err := props.DateTime(ical.PropDateTimeStamp, time.UTC); err == nil && !stamp.IsZero() {
		ev.DTStamp = stamp.UTC()
	}

	if err := readTimes(props, ev); err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.UID, err)
	}

	for _, p := range props.Values(ical.PropAttendee) {
		addr := p.Value
		if strings.HasPrefix(strings.ToLower(addr), mailto) {
			addr = addr[len(mailto):]
		}
		if addr != "" {
			ev.Attendees = append(ev.Attendees, addr)
		}
	}

	if p := props.Get(ical.PropRecurrenceRule); p != nil && p.Value != "" {
		rule, err := readRule(p.Value, ev)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.UID, err)
		}
		recurrence.Apply(ev, rule)

		for _, p := range props.Values(ical.PropExceptionDates) {
			for _, t := range readDateList(&p) {
				ev.RecurrenceExDate = recurrence.MergeExceptionDate(ev.RecurrenceExDate, t, ev.AllDay)
			}
		}
	}

	ev.RecurrenceReferenceID, _ = props.Text(ical.PropRelatedTo)
	if p := props.Get(ical.PropRecurrenceID); p != nil && ev.RecurrenceReferenceID != "" {
		if dates := readDateList(p); len(dates) > 0 {
			ev.RecurrenceReferenceDate = recurrence.FormatDate(dates[0], ev.AllDay)
		}
	}
	return ev, nil
}

func readTimes(props ical.Props, ev *event.Event) error {
	start := props.Get(ical.PropDateTimeStart)
	if start == nil {
		return fmt.Errorf("missing %s", ical.PropDateTimeStart)
	}
	ev.AllDay = start.ValueType() == ical.ValueDate

	startDate, err := start.DateTime(time.UTC)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", ical.PropDateTimeStart, err)
	}
	ev.StartDate = startDate
	if !ev.AllDay {
		ev.TimeZone = start.Params.Get(ical.ParamTimezoneID)
	}

	end := ev.StartDate
	if p := props.Get(ical.PropDateTimeEnd); p != nil {
		if end, err = p.DateTime(time.UTC); err != nil {
			return fmt.Errorf("invalid %s: %w", ical.PropDateTimeEnd, err)
		}
	} else if p := props.Get(ical.PropDuration); p != nil {
		d, err := p.Duration()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", ical.PropDuration, err)
		}
		end = ev.StartDate.Add(d)
	}

	if ev.AllDay {
		// DTEND is exclusive for DATE values; the stored end is the last day.
		if end.After(ev.StartDate) {
			end = end.AddDate(0, 0, -1)
		} else {
			end = ev.StartDate
		}
	}
	ev.EndDate = end
	return nil
}

// readRule decodes RRULE text, resolving a COUNT bound against the event's
// start with rrule-go.
func readRule(text string, ev *event.Event) (recurrence.Rule, error) {
	var count string
	var kept []string
	for _, part := range strings.Split(text, ";") {
		key, value, _ := strings.Cut(part, "=")
		if strings.EqualFold(key, "COUNT") {
			count = value
			continue
		}
		kept = append(kept, part)
	}

	rule, err := recurrence.Decode(strings.Join(kept, ";"))
	if err != nil || count == "" {
		return rule, err
	}

	loc := ev.Zone(time.UTC)
	opt, err := rrule.StrToROptionInLocation(text, loc)
	if err != nil {
		return recurrence.Rule{}, &recurrence.ParseError{Input: text, Reason: "malformed COUNT rule", Err: err}
	}
	opt.Dtstart = ev.StartDate.In(loc)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return recurrence.Rule{}, &recurrence.ParseError{Input: text, Reason: "malformed COUNT rule", Err: err}
	}
	all := r.All()
	if len(all) == 0 {
		return recurrence.Rule{}, &recurrence.ParseError{Input: text, Reason: "COUNT rule yields no occurrences"}
	}

	last := all[len(all)-1].UTC()
	if ev.AllDay {
		last = recurrence.EndOfDay(last)
	}
	return rule.WithUntil(last), nil
}

// dateListProp writes already formatted exception dates. The formats used by the
// exception field are valid RFC 5545 DATE and UTC DATE-TIME values.
func dateListProp(name, values string, allDay bool) *ical.Prop {
	p := ical.NewProp(name)
	p.Value = values
	if allDay {
		p.SetValueType(ical.ValueDate)
	}
	return p
}

// readDateList parses a comma separated date list, honouring VALUE=DATE and TZID.
// Unparsable entries are skipped.
func readDateList(p *ical.Prop) []time.Time {
	var out []time.Time
	for _, v := range strings.Split(p.Value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		single := &ical.Prop{Name: p.Name, Params: p.Params, Value: v}
		t, err := single.DateTime(time.UTC)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func setInt(props ical.Props, name string, v int) {
	p := ical.NewProp(name)
	p.Value = strconv.Itoa(v)
	props.Set(p)
}

// Encode writes events as one VCALENDAR document.
func Encode(w io.Writer, events []*event.Event) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	for _, ev := range events {
		cal.Children = append(cal.Children, FromEvent(ev).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// Decode reads every VEVENT of a VCALENDAR document into events of calendarID.
func Decode(r io.Reader, calendarID string) ([]*event.Event, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	var out []*event.Event
	for _, child := range cal.Events() {
		ev, err := ToEvent(child.Component)
		if err != nil {
			return nil, err
		}
		ev.CalendarID = calendarID
		out = append(out, ev)
	}
	return out, nil
}
