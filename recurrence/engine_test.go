package recurrence

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/caldora-series/event"
)

func timedMaster(start time.Time, d time.Duration, rule string) *event.Event {
	return &event.Event{
		ID:             "ev-1",
		CalendarID:     "cal-1",
		UID:            "uid-1",
		Subject:        "Standup",
		StartDate:      start,
		EndDate:        start.Add(d),
		RecurrenceRule: rule,
	}
}

func starts(occs []event.Occurrence) []time.Time {
	out := make([]time.Time, len(occs))
	for i, o := range occs {
		out[i] = o.Start.UTC()
	}
	return out
}

func TestEngine_BiweeklyScenario(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE")

	windowStart := utc(2024, 1, 1, 0, 0, 0)
	windowEnd := utc(2024, 1, 31, 23, 59, 59)

	occs := engine.ExpandEvent(master, windowStart, windowEnd)
	assert.Equal(t, []time.Time{
		utc(2024, 1, 1, 9, 0, 0),
		utc(2024, 1, 3, 9, 0, 0),
		utc(2024, 1, 15, 9, 0, 0),
		utc(2024, 1, 17, 9, 0, 0),
		utc(2024, 1, 29, 9, 0, 0),
		utc(2024, 1, 31, 9, 0, 0),
	}, starts(occs))

	require.NotEmpty(t, occs)
	assert.Equal(t, event.KindMaster, occs[0].Kind)
	assert.Same(t, master, occs[0].Event)
	for _, o := range occs[1:] {
		assert.Equal(t, event.KindSynthetic, o.Kind)
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
		assert.Equal(t, "Standup", o.Subject())
	}

	t.Run("exception suppresses one occurrence", func(t *testing.T) {
		withEx := master.Clone()
		withEx.RecurrenceExDate = "20240115T090000Z"

		occs := engine.ExpandEvent(withEx, windowStart, windowEnd)
		assert.Equal(t, []time.Time{
			utc(2024, 1, 1, 9, 0, 0),
			utc(2024, 1, 3, 9, 0, 0),
			utc(2024, 1, 17, 9, 0, 0),
			utc(2024, 1, 29, 9, 0, 0),
			utc(2024, 1, 31, 9, 0, 0),
		}, starts(occs))
	})
}

func TestEngine_WeeklySpacing(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(utc(2024, 1, 2, 14, 0, 0), 30*time.Minute, "FREQ=WEEKLY;INTERVAL=3;BYDAY=TU")

	occs := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 12, 31, 0, 0, 0))
	require.True(t, len(occs) > 2)
	for i := 1; i < len(occs); i++ {
		assert.Equal(t, 21*24*time.Hour, occs[i].Start.Sub(occs[i-1].Start))
		assert.Equal(t, time.Tuesday, occs[i].Start.Weekday())
	}
}

func TestEngine_MasterOnlyWhenGenerated(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	// Tuesday master, Monday-only rule.
	master := timedMaster(utc(2024, 1, 2, 9, 0, 0), time.Hour, "FREQ=WEEKLY;BYDAY=MO")

	occs := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 1, 14, 0, 0, 0))
	require.Len(t, occs, 1)
	assert.Equal(t, utc(2024, 1, 8, 9, 0, 0), occs[0].Start)
	assert.True(t, occs[0].IsSynthetic())
}

func TestEngine_WindowPartition(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=DAILY;INTERVAL=2")

	a, b, c := utc(2024, 1, 1, 0, 0, 0), utc(2024, 2, 10, 12, 0, 0), utc(2024, 4, 1, 0, 0, 0)
	whole := engine.ExpandEvent(master, a, c)
	left := engine.ExpandEvent(master, a, b)
	right := engine.ExpandEvent(master, b.Add(time.Second), c)

	assert.Equal(t, starts(whole), append(starts(left), starts(right)...))
}

func TestEngine_UntilBoundsSeries(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=DAILY;UNTIL=20240103T090000Z")

	occs := engine.ExpandEvent(master, utc(2023, 12, 1, 0, 0, 0), utc(2024, 2, 1, 0, 0, 0))
	assert.Equal(t, []time.Time{
		utc(2024, 1, 1, 9, 0, 0),
		utc(2024, 1, 2, 9, 0, 0),
		utc(2024, 1, 3, 9, 0, 0),
	}, starts(occs))
}

func TestEngine_AllDay(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := &event.Event{
		UID:              "holiday",
		StartDate:        utc(2024, 3, 10, 0, 0, 0),
		EndDate:          utc(2024, 3, 10, 0, 0, 0),
		AllDay:           true,
		TimeZone:         "Asia/Tokyo",
		RecurrenceRule:   "FREQ=DAILY;UNTIL=20240314",
		RecurrenceExDate: "20240312",
	}

	occs := engine.ExpandEvent(master, utc(2024, 3, 1, 0, 0, 0), utc(2024, 3, 31, 0, 0, 0))
	assert.Equal(t, []time.Time{
		utc(2024, 3, 10, 0, 0, 0),
		utc(2024, 3, 11, 0, 0, 0),
		utc(2024, 3, 13, 0, 0, 0),
		utc(2024, 3, 14, 0, 0, 0),
	}, starts(occs))
	for _, o := range occs {
		assert.True(t, o.AllDay())
		assert.Equal(t, o.Start, o.End)
	}
}

func TestEngine_MonthlyLastFriday(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(utc(2024, 1, 26, 16, 0, 0), time.Hour, "FREQ=MONTHLY;BYDAY=-1FR")

	occs := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 4, 30, 23, 59, 59))
	assert.Equal(t, []time.Time{
		utc(2024, 1, 26, 16, 0, 0),
		utc(2024, 2, 23, 16, 0, 0),
		utc(2024, 3, 29, 16, 0, 0),
		utc(2024, 4, 26, 16, 0, 0),
	}, starts(occs))
}

func TestEngine_ZoneKeepsWallClock(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	engine := NewEngineWithConfig(DisabledCacheConfig)
	master := timedMaster(time.Date(2024, 3, 8, 9, 0, 0, 0, ny), time.Hour, "FREQ=DAILY")
	master.TimeZone = "America/New_York"

	// DST starts on 2024-03-10 in New York.
	occs := engine.ExpandEvent(master, utc(2024, 3, 8, 0, 0, 0), utc(2024, 3, 11, 23, 0, 0))
	require.Len(t, occs, 4)
	for _, o := range occs {
		assert.Equal(t, 9, o.Start.In(ny).Hour())
	}
	assert.Equal(t, utc(2024, 3, 8, 14, 0, 0), occs[0].Start.UTC())
	assert.Equal(t, utc(2024, 3, 11, 13, 0, 0), occs[3].Start.UTC())
}

func TestEngine_FastForwardMatchesNaiveExpansion(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name  string
		start time.Time
		rule  string
	}{
		{"daily interval", time.Date(2015, 6, 3, 7, 30, 0, 0, ny), "FREQ=DAILY;INTERVAL=3"},
		{"weekly from thursday", time.Date(2016, 9, 1, 18, 0, 0, 0, ny), "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH"},
		{"weekly defaulted weekday", time.Date(2017, 2, 5, 10, 0, 0, 0, ny), "FREQ=WEEKLY;INTERVAL=5"},
		{"monthly on the 31st", time.Date(2014, 1, 31, 8, 0, 0, 0, ny), "FREQ=MONTHLY;BYMONTHDAY=31"},
		{"monthly defaulted day", time.Date(2014, 1, 30, 8, 0, 0, 0, ny), "FREQ=MONTHLY;INTERVAL=7"},
		{"monthly last friday", time.Date(2013, 5, 31, 12, 0, 0, 0, ny), "FREQ=MONTHLY;INTERVAL=2;BYDAY=-1FR"},
		{"yearly leap day", time.Date(2004, 2, 29, 9, 0, 0, 0, ny), "FREQ=YEARLY"},
		{"yearly months", time.Date(2010, 3, 14, 9, 0, 0, 0, ny), "FREQ=YEARLY;INTERVAL=3;BYMONTH=3,10"},
		{"yearly position", time.Date(2011, 11, 6, 9, 0, 0, 0, ny), "FREQ=YEARLY;BYMONTH=11;BYDAY=1SU"},
	}

	windowStart := time.Date(2024, 2, 17, 0, 0, 0, 0, ny)
	windowEnd := time.Date(2025, 5, 3, 0, 0, 0, 0, ny)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMatchesNaive(t, tt.rule, tt.start, windowStart, windowEnd)
		})
	}
}

func TestEngine_FastForwardOntoGapDay(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	// Sydney skips 02:00-03:00 on 2023-10-01.
	tests := []struct {
		name     string
		start    time.Time
		rule     string
		from, to time.Time
	}{
		{
			"monthly seed on the first",
			time.Date(2021, 6, 8, 2, 45, 0, 0, sydney),
			"FREQ=MONTHLY;INTERVAL=2;BYDAY=3TH",
			time.Date(2023, 11, 29, 0, 0, 0, 0, sydney),
			time.Date(2024, 3, 25, 0, 0, 0, 0, sydney),
		},
		{
			"daily seed on the gap day",
			time.Date(2023, 9, 1, 2, 30, 0, 0, sydney),
			"FREQ=DAILY",
			time.Date(2023, 10, 1, 0, 0, 0, 0, sydney),
			time.Date(2023, 10, 10, 0, 0, 0, 0, sydney),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assertMatchesNaive(t, tt.rule, tt.start, tt.from, tt.to)
			for _, o := range got[1:] {
				h, m, _ := o.Start.In(sydney).Clock()
				assert.Equal(t, tt.start.Hour(), h, o.Start)
				assert.Equal(t, tt.start.Minute(), m, o.Start)
			}
		})
	}
}

// assertMatchesNaive expands a zoned series through the engine and compares it
// with rrule-go seeded at the series start.
func assertMatchesNaive(t *testing.T, ruleText string, start, windowStart, windowEnd time.Time) []event.Occurrence {
	t.Helper()
	loc := start.Location()

	rule, err := Decode(ruleText)
	require.NoError(t, err)

	naive, err := rrule.NewRRule(ruleOption(rule, start))
	require.NoError(t, err)
	want := naive.Between(windowStart, windowEnd, true)
	require.NotEmpty(t, want)

	engine := NewEngineWithConfig(EngineConfig{MaxOccurrences: 0})
	master := timedMaster(start, time.Hour, ruleText)
	got := engine.Expand(master, rule, NewExceptionSet(false), windowStart, windowEnd, loc)

	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i].Start), "occurrence %d: want %s, got %s", i, want[i], got[i].Start)
	}
	return got
}

func TestEngine_ZonelessSeriesUsesEngineLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cfg := DisabledCacheConfig
	cfg.Location = ny
	engine := NewEngineWithConfig(cfg)
	master := timedMaster(time.Date(2024, 3, 8, 9, 0, 0, 0, ny), time.Hour, "FREQ=DAILY")

	occs := engine.ExpandEvent(master, utc(2024, 3, 8, 0, 0, 0), utc(2024, 3, 11, 23, 0, 0))
	require.Len(t, occs, 4)
	for _, o := range occs {
		assert.Equal(t, 9, o.Start.In(ny).Hour())
	}
	assert.True(t, engine.HasOccurrenceInRange(master, utc(2024, 3, 11, 13, 0, 0), utc(2024, 3, 11, 13, 0, 0)))
	assert.False(t, engine.HasOccurrenceInRange(master, utc(2024, 3, 11, 14, 0, 0), utc(2024, 3, 11, 14, 0, 0)))
}

func TestEngine_MaxOccurrences(t *testing.T) {
	cfg := DisabledCacheConfig
	cfg.MaxOccurrences = 10
	engine := NewEngineWithConfig(cfg)
	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=DAILY")

	occs := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 12, 31, 0, 0, 0))
	assert.Len(t, occs, 10)
}

func TestEngine_UnparsableRuleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	cfg := DisabledCacheConfig
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	engine := NewEngineWithConfig(cfg)

	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=DAILY;COUNT=3")
	occs := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 2, 1, 0, 0, 0))

	assert.Empty(t, occs)
	assert.Contains(t, buf.String(), "unparsable recurrence rule")
	assert.Contains(t, buf.String(), "uid=uid-1")
}

func TestEngine_HasOccurrenceInRange(t *testing.T) {
	engine := NewEngine()
	masterStart := utc(2024, 1, 1, 9, 0, 0)

	tests := []struct {
		name       string
		rule       string
		rangeStart time.Time
		rangeEnd   time.Time
		expected   bool
	}{
		{"single event in range", "", utc(2023, 12, 31, 0, 0, 0), utc(2024, 1, 2, 0, 0, 0), true},
		{"single event out of range", "", utc(2024, 1, 2, 0, 0, 0), utc(2024, 1, 3, 0, 0, 0), false},
		{"daily with occurrence in range", "FREQ=DAILY;UNTIL=20240107T090000Z", utc(2024, 1, 3, 0, 0, 0), utc(2024, 1, 4, 0, 0, 0), true},
		{"daily ended before range", "FREQ=DAILY;UNTIL=20240103T090000Z", utc(2024, 1, 10, 0, 0, 0), utc(2024, 1, 11, 0, 0, 0), false},
		{"series truncated before its start", "FREQ=DAILY;UNTIL=20231231T235959Z", utc(2023, 1, 1, 0, 0, 0), engine.Horizon(masterStart), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := timedMaster(masterStart, time.Hour, tt.rule)
			assert.Equal(t, tt.expected, engine.HasOccurrenceInRange(master, tt.rangeStart, tt.rangeEnd))
		})
	}
}

func TestEngine_UsesCache(t *testing.T) {
	engine := NewEngine()
	master := timedMaster(utc(2024, 1, 1, 9, 0, 0), time.Hour, "FREQ=DAILY")

	first := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 1, 5, 0, 0, 0))
	second := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 1, 5, 0, 0, 0))

	assert.Equal(t, starts(first), starts(second))
	assert.Equal(t, 1, engine.Cache().Stats().TotalEntries)

	// A different exception set is a different entry.
	master.RecurrenceExDate = "20240102T090000Z"
	third := engine.ExpandEvent(master, utc(2024, 1, 1, 0, 0, 0), utc(2024, 1, 5, 0, 0, 0))
	assert.Len(t, third, 3)
	assert.Equal(t, 2, engine.Cache().Stats().TotalEntries)
}

func TestApply(t *testing.T) {
	ev := &event.Event{AllDay: true, RecurrenceExDate: "20240105"}

	Apply(ev, Rule{Frequency: FreqWeekly, Interval: 1, Until: ptr(utc(2024, 2, 1, 5, 0, 0))})
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20240201", ev.RecurrenceRule)
	require.NotNil(t, ev.RecurrenceUntil)
	assert.Equal(t, utc(2024, 2, 1, 23, 59, 59), *ev.RecurrenceUntil)
	assert.Equal(t, "20240105", ev.RecurrenceExDate)

	Apply(ev, Rule{})
	assert.Empty(t, ev.RecurrenceRule)
	assert.Nil(t, ev.RecurrenceUntil)
	assert.Empty(t, ev.RecurrenceExDate)
}

func TestSyncUntil(t *testing.T) {
	ev := &event.Event{RecurrenceRule: "FREQ=DAILY;UNTIL=20240301T120000Z"}
	require.NoError(t, SyncUntil(ev))
	require.NotNil(t, ev.RecurrenceUntil)
	assert.Equal(t, utc(2024, 3, 1, 12, 0, 0), *ev.RecurrenceUntil)

	ev.RecurrenceRule = "FREQ=SECONDLY"
	assert.Error(t, SyncUntil(ev))
}
