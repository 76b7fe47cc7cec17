package event

import "time"

// View is the read-only face of an event returned to callers. Masters and
// synthetic occurrences both satisfy it.
type View interface {
	StartDate() time.Time
	EndDate() time.Time
	AllDay() bool
	UID() string
	Subject() string
	Location() string
	Note() string
	// Master returns the persisted event the view was derived from.
	Master() *Event
}

// Kind tags an Occurrence.
type Kind int

const (
	// KindMaster is the persisted event itself.
	KindMaster Kind = iota
	// KindSynthetic is a computed instance of a recurring master.
	KindSynthetic
)

func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Occurrence is one concrete instance of an event. For KindMaster, Start and End
// equal the master's dates.
type Occurrence struct {
	Kind  Kind
	Event *Event
	Start time.Time
	End   time.Time
}

// MasterOccurrence wraps the master itself.
func MasterOccurrence(ev *Event) Occurrence {
	return Occurrence{Kind: KindMaster, Event: ev, Start: ev.StartDate, End: ev.EndDate}
}

// SyntheticOccurrence places ev at start, keeping its duration.
func SyntheticOccurrence(ev *Event, start time.Time) Occurrence {
	return Occurrence{Kind: KindSynthetic, Event: ev, Start: start, End: start.Add(ev.Duration())}
}

var _ View = Occurrence{}

func (o Occurrence) StartDate() time.Time { return o.Start }
func (o Occurrence) EndDate() time.Time   { return o.End }
func (o Occurrence) AllDay() bool         { return o.Event.AllDay }
func (o Occurrence) UID() string          { return o.Event.UID }
func (o Occurrence) Subject() string      { return o.Event.Subject }
func (o Occurrence) Location() string     { return o.Event.Location }
func (o Occurrence) Note() string         { return o.Event.Note }
func (o Occurrence) Master() *Event       { return o.Event }

// IsSynthetic reports whether the occurrence was computed from a rule.
func (o Occurrence) IsSynthetic() bool {
	return o.Kind == KindSynthetic
}
