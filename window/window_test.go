package window

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-series/event"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestRange_Widen(t *testing.T) {
	r := New(utc(2024, 1, 10, 0, 0), utc(2024, 1, 11, 0, 0)).Widen()
	assert.Equal(t, utc(2024, 1, 9, 0, 0), r.Start.MustGet())
	assert.Equal(t, utc(2024, 1, 12, 0, 0), r.End.MustGet())

	open := Range{Start: mo.Some(utc(2024, 1, 10, 0, 0)), End: mo.None[time.Time]()}.Widen()
	assert.Equal(t, utc(2024, 1, 9, 0, 0), open.Start.MustGet())
	assert.True(t, open.End.IsAbsent())
}

func TestRange_MatchesTimed(t *testing.T) {
	r := New(utc(2024, 1, 10, 9, 0), utc(2024, 1, 10, 17, 0))

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", utc(2024, 1, 10, 10, 0), utc(2024, 1, 10, 11, 0), true},
		{"ends at window start", utc(2024, 1, 10, 8, 0), utc(2024, 1, 10, 9, 0), true},
		{"starts at window end", utc(2024, 1, 10, 17, 0), utc(2024, 1, 10, 18, 0), true},
		{"before", utc(2024, 1, 10, 7, 0), utc(2024, 1, 10, 8, 59), false},
		{"after", utc(2024, 1, 10, 17, 1), utc(2024, 1, 10, 18, 0), false},
		{"spans window", utc(2024, 1, 9, 0, 0), utc(2024, 1, 11, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Matches(tt.start, tt.end, false, time.UTC))
		})
	}
}

func TestRange_MatchesAllDayAcrossZones(t *testing.T) {
	zones := []string{"America/Los_Angeles", "America/New_York", "UTC", "Europe/Berlin", "Asia/Tokyo", "Pacific/Kiritimati"}
	eventDay := utc(2024, 1, 10, 0, 0)

	for _, name := range zones {
		t.Run(name, func(t *testing.T) {
			loc, err := time.LoadLocation(name)
			require.NoError(t, err)

			sameDay := New(time.Date(2024, 1, 10, 0, 0, 0, 0, loc), time.Date(2024, 1, 10, 23, 59, 59, 0, loc))
			assert.True(t, sameDay.Matches(eventDay, eventDay, true, loc), "local query of the same day")

			dayBefore := New(time.Date(2024, 1, 9, 0, 0, 0, 0, loc), time.Date(2024, 1, 9, 23, 59, 59, 0, loc))
			assert.False(t, dayBefore.Matches(eventDay, eventDay, true, loc))

			dayAfter := New(time.Date(2024, 1, 11, 0, 0, 0, 0, loc), time.Date(2024, 1, 11, 23, 59, 59, 0, loc))
			assert.False(t, dayAfter.Matches(eventDay, eventDay, true, loc))

			// The widened window must still surface the event to storage.
			master := &event.Event{StartDate: eventDay, EndDate: eventDay, AllDay: true}
			assert.True(t, sameDay.Widen().Candidate(master))
		})
	}
}

func TestRange_MatchesMultiDayAllDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Jan 10 through Jan 12 inclusive.
	start, end := utc(2024, 1, 10, 0, 0), utc(2024, 1, 12, 0, 0)
	r := New(time.Date(2024, 1, 12, 0, 0, 0, 0, ny), time.Date(2024, 1, 12, 23, 59, 0, 0, ny))
	assert.True(t, r.Matches(start, end, true, ny))

	r = New(time.Date(2024, 1, 13, 0, 0, 0, 0, ny), time.Date(2024, 1, 13, 23, 59, 0, 0, ny))
	assert.False(t, r.Matches(start, end, true, ny))
}

func TestRange_OpenSidesMatch(t *testing.T) {
	r := Open()
	assert.True(t, r.Matches(utc(1990, 1, 1, 0, 0), utc(1990, 1, 1, 1, 0), false, nil))
	assert.True(t, r.Matches(utc(2090, 1, 1, 0, 0), utc(2090, 1, 1, 0, 0), true, nil))
}

func TestRange_Candidate(t *testing.T) {
	r := New(utc(2024, 1, 9, 0, 0), utc(2024, 1, 12, 0, 0))
	until := utc(2024, 1, 8, 23, 59)

	tests := []struct {
		name string
		ev   event.Event
		want bool
	}{
		{"single overlapping", event.Event{StartDate: utc(2024, 1, 10, 9, 0), EndDate: utc(2024, 1, 10, 10, 0)}, true},
		{"single before", event.Event{StartDate: utc(2024, 1, 1, 9, 0), EndDate: utc(2024, 1, 1, 10, 0)}, false},
		{"recurring started long ago", event.Event{StartDate: utc(2020, 1, 1, 9, 0), EndDate: utc(2020, 1, 1, 10, 0), RecurrenceRule: "FREQ=DAILY"}, true},
		{"recurring starts after window", event.Event{StartDate: utc(2024, 2, 1, 9, 0), EndDate: utc(2024, 2, 1, 10, 0), RecurrenceRule: "FREQ=DAILY"}, false},
		{"recurring ended before window", event.Event{StartDate: utc(2020, 1, 1, 9, 0), EndDate: utc(2020, 1, 1, 10, 0), RecurrenceRule: "FREQ=DAILY", RecurrenceUntil: &until}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Candidate(&tt.ev))
		})
	}
}

func TestRange_RecurrencePrefilter(t *testing.T) {
	r := New(utc(2024, 1, 9, 0, 0), utc(2024, 1, 12, 0, 0))
	atStart := utc(2024, 1, 9, 0, 0)
	later := utc(2024, 3, 1, 0, 0)

	single := &event.Event{StartDate: utc(2024, 1, 10, 9, 0), EndDate: utc(2024, 1, 10, 10, 0)}
	assert.False(t, r.RecurrencePrefilter(single))

	open := &event.Event{StartDate: utc(2023, 1, 1, 9, 0), RecurrenceRule: "FREQ=WEEKLY"}
	assert.True(t, r.RecurrencePrefilter(open))

	startsAtEnd := &event.Event{StartDate: utc(2024, 1, 12, 0, 0), RecurrenceRule: "FREQ=WEEKLY"}
	assert.False(t, r.RecurrencePrefilter(startsAtEnd))

	untilAtStart := &event.Event{StartDate: utc(2023, 1, 1, 9, 0), RecurrenceRule: "FREQ=WEEKLY", RecurrenceUntil: &atStart}
	assert.False(t, r.RecurrencePrefilter(untilAtStart))

	untilLater := &event.Event{StartDate: utc(2023, 1, 1, 9, 0), RecurrenceRule: "FREQ=WEEKLY", RecurrenceUntil: &later}
	assert.True(t, r.RecurrencePrefilter(untilLater))
}
