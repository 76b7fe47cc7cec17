package recurrence

import (
	"github.com/cyp0633/caldora-series/event"
)

// Apply writes r onto ev: the rule text and the denormalised until bound. The NONE
// rule clears the rule, its until and any exception dates.
func Apply(ev *event.Event, r Rule) {
	if r.Frequency == FreqNone {
		ev.RecurrenceRule = ""
		ev.RecurrenceUntil = nil
		ev.RecurrenceExDate = ""
		return
	}

	ev.RecurrenceRule = Encode(r, ev.AllDay)
	ev.RecurrenceUntil = nil
	if r.Until != nil {
		until := r.Until.UTC()
		if ev.AllDay {
			until = EndOfDay(until)
		}
		ev.RecurrenceUntil = &until
	}
}

// SyncUntil re-derives ev.RecurrenceUntil from its rule text and rewrites the rule
// in canonical form.
func SyncUntil(ev *event.Event) error {
	r, err := Decode(ev.RecurrenceRule)
	if err != nil {
		return err
	}
	Apply(ev, r)
	return nil
}
