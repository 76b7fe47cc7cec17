package series

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/recurrence"
	"github.com/cyp0633/caldora-series/storage"
	"github.com/cyp0633/caldora-series/window"
)

// Query selects occurrences for Finder.Find.
type Query struct {
	Start mo.Option[time.Time]
	End   mo.Option[time.Time]

	// CalendarIDs restricts the query. Empty means all calendars.
	CalendarIDs []string

	// OnlyRecurrence returns the recurring masters overlapping the window
	// without expanding them.
	OnlyRecurrence bool

	// Location is the caller's zone. All-day events are matched against calendar
	// days in it. Timed series still expand in their own zone, or the engine's
	// location when they have none. Defaults to the engine's location.
	Location *time.Location
}

// Finder answers windowed queries by expanding recurring masters.
type Finder struct {
	store  storage.Store
	engine *recurrence.Engine
	logger *slog.Logger
}

// NewFinder creates a Finder. A nil logger disables logging.
func NewFinder(store storage.Store, engine *recurrence.Engine, logger *slog.Logger) *Finder {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Finder{store: store, engine: engine, logger: logger}
}

// Find returns the occurrences overlapping the query window, sorted by start
// and then UID.
func (f *Finder) Find(ctx context.Context, q Query) ([]event.Occurrence, error) {
	loc := q.Location
	if loc == nil {
		loc = f.engine.Config().Location
	}
	exact := window.Range{Start: q.Start, End: q.End}

	if q.OnlyRecurrence {
		masters, err := f.store.FindEvents(ctx, &storage.Filter{
			Range:          exact,
			CalendarIDs:    q.CalendarIDs,
			OnlyRecurrence: true,
		})
		if err != nil {
			return nil, fmt.Errorf("find recurring events: %w", err)
		}
		out := make([]event.Occurrence, len(masters))
		for i, m := range masters {
			out[i] = event.MasterOccurrence(m)
		}
		sortOccurrences(out)
		return out, nil
	}

	wide := exact.Widen()
	candidates, err := f.store.FindEvents(ctx, &storage.Filter{
		Range:       wide,
		CalendarIDs: q.CalendarIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}

	var out []event.Occurrence
	for _, ev := range candidates {
		if !ev.IsRecurring() {
			occ := event.MasterOccurrence(ev)
			if exact.MatchesView(occ, loc) {
				out = append(out, occ)
			}
			continue
		}

		from, to := f.expansionWindow(ev, wide)
		for _, occ := range f.engine.ExpandEvent(ev, from, to) {
			if exact.MatchesView(occ, loc) {
				out = append(out, occ)
			}
		}
	}

	sortOccurrences(out)
	f.logger.Debug("query answered",
		"candidates", len(candidates),
		"occurrences", len(out))
	return out, nil
}

// expansionWindow picks the generation bounds for one master. The start is pulled
// back by the master's duration so occurrences that begin before the window but
// run into it are generated.
func (f *Finder) expansionWindow(master *event.Event, wide window.Range) (time.Time, time.Time) {
	from := wide.Start.OrElse(master.StartDate)
	from = from.Add(-master.Duration())

	to, ok := wide.End.Get()
	if !ok {
		if master.RecurrenceUntil != nil {
			to = *master.RecurrenceUntil
		} else {
			to = f.engine.Horizon(from)
		}
	}
	return from, to
}

func sortOccurrences(occs []event.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].UID() < occs[j].UID()
	})
}
