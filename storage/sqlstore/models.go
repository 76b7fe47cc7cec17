package sqlstore

import (
	"strings"
	"time"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/storage"
)

type calendarRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Description string
	Color       string
	TimeZone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (calendarRow) TableName() string { return "calendars" }

// eventRow is the persisted form of event.Event. Instants are stored in UTC at
// second precision so SQLite's text comparison orders them correctly.
type eventRow struct {
	ID         string `gorm:"primaryKey"`
	CalendarID string `gorm:"index"`
	UID        string `gorm:"index"`

	Subject  string
	Location string
	Note     string

	StartDate time.Time `gorm:"index"`
	EndDate   time.Time
	AllDay    bool
	TimeZone  string

	// Attendees is a comma separated address list.
	Attendees string

	Sequence int
	DTStamp  time.Time
	Owned    bool

	RecurrenceRule          string
	RecurrenceExDate        string
	RecurrenceUntil         *time.Time `gorm:"index"`
	RecurrenceReferenceID   string     `gorm:"index"`
	RecurrenceReferenceDate string

	Deleted   bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (eventRow) TableName() string { return "events" }

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func fromCalendar(cal *storage.Calendar) *calendarRow {
	return &calendarRow{
		ID:          cal.ID,
		Name:        cal.Name,
		Description: cal.Description,
		Color:       cal.Color,
		TimeZone:    cal.TimeZone,
		CreatedAt:   cal.Created,
		UpdatedAt:   cal.Modified,
	}
}

func (r *calendarRow) toCalendar() *storage.Calendar {
	return &storage.Calendar{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		TimeZone:    r.TimeZone,
		Created:     r.CreatedAt,
		Modified:    r.UpdatedAt,
	}
}

func fromEvent(ev *event.Event) *eventRow {
	row := &eventRow{
		ID:                      ev.ID,
		CalendarID:              ev.CalendarID,
		UID:                     ev.UID,
		Subject:                 ev.Subject,
		Location:                ev.Location,
		Note:                    ev.Note,
		StartDate:               dbTime(ev.StartDate),
		EndDate:                 dbTime(ev.EndDate),
		AllDay:                  ev.AllDay,
		TimeZone:                ev.TimeZone,
		Attendees:               strings.Join(ev.Attendees, ","),
		Sequence:                ev.Sequence,
		DTStamp:                 dbTime(ev.DTStamp),
		Owned:                   ev.Owned,
		RecurrenceRule:          ev.RecurrenceRule,
		RecurrenceExDate:        ev.RecurrenceExDate,
		RecurrenceReferenceID:   ev.RecurrenceReferenceID,
		RecurrenceReferenceDate: ev.RecurrenceReferenceDate,
		Deleted:                 ev.Deleted,
		CreatedAt:               ev.Created,
		UpdatedAt:               ev.Modified,
	}
	if ev.RecurrenceUntil != nil {
		until := dbTime(*ev.RecurrenceUntil)
		row.RecurrenceUntil = &until
	}
	return row
}

func (r *eventRow) toEvent() *event.Event {
	ev := &event.Event{
		ID:                      r.ID,
		CalendarID:              r.CalendarID,
		UID:                     r.UID,
		Subject:                 r.Subject,
		Location:                r.Location,
		Note:                    r.Note,
		StartDate:               r.StartDate.UTC(),
		EndDate:                 r.EndDate.UTC(),
		AllDay:                  r.AllDay,
		TimeZone:                r.TimeZone,
		Sequence:                r.Sequence,
		DTStamp:                 r.DTStamp.UTC(),
		Owned:                   r.Owned,
		RecurrenceRule:          r.RecurrenceRule,
		RecurrenceExDate:        r.RecurrenceExDate,
		RecurrenceReferenceID:   r.RecurrenceReferenceID,
		RecurrenceReferenceDate: r.RecurrenceReferenceDate,
		Deleted:                 r.Deleted,
		Created:                 r.CreatedAt,
		Modified:                r.UpdatedAt,
	}
	if r.Attendees != "" {
		ev.Attendees = strings.Split(r.Attendees, ",")
	}
	if r.RecurrenceUntil != nil {
		until := r.RecurrenceUntil.UTC()
		ev.RecurrenceUntil = &until
	}
	return ev
}
