package series

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/recurrence"
	"github.com/cyp0633/caldora-series/storage"
)

// Editor persists event writes and propagates them through recurring series.
type Editor struct {
	store  storage.Store
	engine *recurrence.Engine
	logger *slog.Logger
	now    func() time.Time
}

// Option represents a configuration option for the Editor
type Option func(*Editor)

// WithLogger sets the logger for the editor
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEditor creates an Editor writing to store. engine is used to check whether
// a truncated series still has occurrences.
func NewEditor(store storage.Store, engine *recurrence.Engine, opts ...Option) *Editor {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	e := &Editor{
		store:  store,
		engine: engine,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create validates and inserts a new event. ID and UID are generated when empty.
// A timed event without a zone takes its calendar's zone.
func (e *Editor) Create(ctx context.Context, ev *event.Event) (*event.Event, error) {
	ev = ev.Clone()
	if err := prepare(ev); err != nil {
		return nil, err
	}

	cal, err := e.store.GetCalendar(ctx, ev.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("lookup calendar %s: %w", ev.CalendarID, err)
	}
	if ev.TimeZone == "" && !ev.AllDay {
		ev.TimeZone = cal.TimeZone
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.UID == "" {
		ev.UID = uuid.NewString()
	}
	ev.Sequence = 0
	ev.DTStamp = e.now().UTC()
	ev.Deleted = false

	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	e.logger.Info("event created",
		"id", ev.ID,
		"uid", ev.UID,
		"recurring", ev.IsRecurring())
	return ev, nil
}

// Save writes ev according to intent and returns the event that now carries the
// caller's edits: the master for ModeAll, the new event for ModeFuture and ModeSingle.
// An intent on a non-recurring event is treated as ModeAll.
func (e *Editor) Save(ctx context.Context, ev *event.Event, intent *Intent) (*event.Event, error) {
	ev = ev.Clone()
	if err := prepare(ev); err != nil {
		return nil, err
	}

	mode, err := e.resolveMode(ctx, ev.ID, intent)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeFuture:
		return e.saveFuture(ctx, ev, intent.Selected)
	case ModeSingle:
		return e.saveSingle(ctx, ev, intent.Selected)
	default:
		return e.saveAll(ctx, ev)
	}
}

// Delete removes the event according to intent. ModeAll soft-deletes the master,
// ModeFuture truncates the series before the selected occurrence and ModeSingle
// adds the selected occurrence to the exception list.
func (e *Editor) Delete(ctx context.Context, eventID string, intent *Intent) error {
	mode, err := e.resolveMode(ctx, eventID, intent)
	if err != nil {
		return err
	}

	switch mode {
	case ModeFuture:
		return e.deleteFuture(ctx, eventID, intent.Selected)
	case ModeSingle:
		return e.deleteSingle(ctx, eventID, intent.Selected)
	default:
		if err := e.store.DeleteEvent(ctx, eventID); err != nil {
			return fmt.Errorf("delete event %s: %w", eventID, err)
		}
		e.logger.Info("event deleted", "id", eventID)
		return nil
	}
}

func (e *Editor) resolveMode(ctx context.Context, eventID string, intent *Intent) (Mode, error) {
	mode := intent.mode()
	if mode == ModeAll {
		return ModeAll, nil
	}
	if mode != ModeFuture && mode != ModeSingle {
		return 0, &event.ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown mode %d", mode)}
	}
	if intent.Selected.IsZero() {
		return 0, &event.ValidationError{Field: "intent", Reason: "selected occurrence is required"}
	}

	master, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("load master %s: %w", eventID, err)
	}
	if !master.IsRecurring() {
		return ModeAll, nil
	}
	return mode, nil
}

func (e *Editor) saveAll(ctx context.Context, ev *event.Event) (*event.Event, error) {
	persisted, err := e.store.GetEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", ev.ID, err)
	}

	if ev.CalendarID != persisted.CalendarID {
		if _, err := e.store.GetCalendar(ctx, ev.CalendarID); err != nil {
			return nil, fmt.Errorf("lookup calendar %s: %w", ev.CalendarID, err)
		}
	}

	ev.UID = persisted.UID
	ev.Owned = persisted.Owned
	ev.Sequence = persisted.Sequence
	ev.DTStamp = persisted.DTStamp
	ev.Created = persisted.Created
	ev.Deleted = persisted.Deleted
	ev.RecurrenceReferenceID = persisted.RecurrenceReferenceID
	ev.RecurrenceReferenceDate = persisted.RecurrenceReferenceDate
	e.bookkeep(persisted, ev)

	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("update event %s: %w", ev.ID, err)
	}

	e.logger.Info("event updated",
		"id", ev.ID,
		"sequence", ev.Sequence)
	return ev, nil
}

// saveFuture splits the series: the persisted master ends the day before selected
// and a new master carrying the caller's edits starts at selected.
func (e *Editor) saveFuture(ctx context.Context, ev *event.Event, selected time.Time) (*event.Event, error) {
	var head *event.Event
	err := e.store.WithinTx(ctx, func(tx storage.Store) error {
		master, err := tx.GetEvent(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("load master %s: %w", ev.ID, err)
		}
		loc := master.Zone(e.engine.Config().Location)

		if err := e.truncate(ctx, tx, master, selected, loc); err != nil {
			return err
		}

		head = ev.Clone()
		head.ID = uuid.NewString()
		head.UID = uuid.NewString()
		head.Owned = master.Owned
		head.Sequence = 0
		head.DTStamp = e.now().UTC()
		head.Deleted = false
		head.RecurrenceReferenceID = ""
		head.RecurrenceReferenceDate = ""
		rebase(head, selected, loc)

		if err := tx.CreateEvent(ctx, head); err != nil {
			return fmt.Errorf("create series head: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("series split",
		"id", ev.ID,
		"head", head.ID,
		"selected", selected)
	return head, nil
}

// saveSingle excludes the selected occurrence from the master and stores the
// caller's edits as a standalone event in its place.
func (e *Editor) saveSingle(ctx context.Context, ev *event.Event, selected time.Time) (*event.Event, error) {
	var single *event.Event
	err := e.store.WithinTx(ctx, func(tx storage.Store) error {
		master, err := tx.GetEvent(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("load master %s: %w", ev.ID, err)
		}
		loc := master.Zone(e.engine.Config().Location)

		if err := e.exclude(ctx, tx, master, selected); err != nil {
			return err
		}

		single = ev.Clone()
		single.ID = uuid.NewString()
		single.UID = uuid.NewString()
		single.Owned = master.Owned
		single.Sequence = 0
		single.DTStamp = e.now().UTC()
		single.Deleted = false
		single.RecurrenceRule = ""
		single.RecurrenceExDate = ""
		single.RecurrenceUntil = nil
		single.RecurrenceReferenceID = master.UID
		single.RecurrenceReferenceDate = recurrence.FormatDate(selected, master.AllDay)
		rebase(single, selected, loc)

		if err := tx.CreateEvent(ctx, single); err != nil {
			return fmt.Errorf("create occurrence override: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("occurrence detached",
		"id", ev.ID,
		"override", single.ID,
		"selected", selected)
	return single, nil
}

func (e *Editor) deleteFuture(ctx context.Context, eventID string, selected time.Time) error {
	err := e.store.WithinTx(ctx, func(tx storage.Store) error {
		master, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load master %s: %w", eventID, err)
		}
		return e.truncate(ctx, tx, master, selected, master.Zone(e.engine.Config().Location))
	})
	if err != nil {
		return err
	}

	e.logger.Info("series truncated", "id", eventID, "selected", selected)
	return nil
}

func (e *Editor) deleteSingle(ctx context.Context, eventID string, selected time.Time) error {
	err := e.store.WithinTx(ctx, func(tx storage.Store) error {
		master, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load master %s: %w", eventID, err)
		}
		return e.exclude(ctx, tx, master, selected)
	})
	if err != nil {
		return err
	}

	e.logger.Info("occurrence excluded", "id", eventID, "selected", selected)
	return nil
}

// truncate bounds master to end before the day of selected and saves it. A
// master left without occurrences is soft-deleted.
func (e *Editor) truncate(ctx context.Context, tx storage.Store, master *event.Event, selected time.Time, loc *time.Location) error {
	rule, err := recurrence.Decode(master.RecurrenceRule)
	if err != nil {
		return &event.ValidationError{Field: "recurrenceRule", Reason: "stored rule cannot be truncated", Err: err}
	}

	until := recurrence.TruncateUntil(selected, loc)
	if rule.Until == nil || rule.Until.After(until) {
		rule = rule.WithUntil(until)
	}

	before := master.Clone()
	recurrence.Apply(master, rule)
	e.bookkeep(before, master)

	if err := tx.UpdateEvent(ctx, master); err != nil {
		return fmt.Errorf("truncate master %s: %w", master.ID, err)
	}

	if !e.engine.HasOccurrenceInRange(master, master.StartDate, *master.RecurrenceUntil) {
		if err := tx.DeleteEvent(ctx, master.ID); err != nil {
			return fmt.Errorf("delete emptied master %s: %w", master.ID, err)
		}
		e.logger.Info("series emptied by truncation", "id", master.ID)
	}
	return nil
}

// exclude adds selected to master's exception list and saves it.
func (e *Editor) exclude(ctx context.Context, tx storage.Store, master *event.Event, selected time.Time) error {
	before := master.Clone()
	master.RecurrenceExDate = recurrence.MergeExceptionDate(master.RecurrenceExDate, selected, master.AllDay)
	e.bookkeep(before, master)

	if err := tx.UpdateEvent(ctx, master); err != nil {
		return fmt.Errorf("exclude occurrence from %s: %w", master.ID, err)
	}
	return nil
}

// bookkeep bumps SEQUENCE and DTSTAMP when an owned event changed in a way
// attendees can see. Events owned elsewhere are left alone.
func (e *Editor) bookkeep(before, after *event.Event) {
	if !after.Owned || !significantChange(before, after) {
		return
	}
	after.Sequence = before.Sequence + 1
	after.DTStamp = e.now().UTC()
}

func significantChange(a, b *event.Event) bool {
	return !a.StartDate.Equal(b.StartDate) ||
		!a.EndDate.Equal(b.EndDate) ||
		a.AllDay != b.AllDay ||
		a.Subject != b.Subject ||
		a.Location != b.Location ||
		a.Note != b.Note ||
		a.RecurrenceRule != b.RecurrenceRule ||
		a.RecurrenceExDate != b.RecurrenceExDate ||
		!sameAttendees(a.Attendees, b.Attendees)
}

func sameAttendees(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// prepare validates ev and re-derives its until from the rule text.
func prepare(ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if !ev.IsRecurring() {
		ev.RecurrenceUntil = nil
		ev.RecurrenceExDate = ""
		return nil
	}
	if err := recurrence.SyncUntil(ev); err != nil {
		return &event.ValidationError{Field: "recurrenceRule", Reason: "unparsable recurrence rule", Err: err}
	}
	return nil
}

// rebase moves ev to the calendar date of selected in loc, keeping its own time
// of day and duration. All-day events land on UTC midnight of that date.
func rebase(ev *event.Event, selected time.Time, loc *time.Location) {
	d := ev.Duration()
	if ev.AllDay {
		y, m, day := selected.UTC().Date()
		ev.StartDate = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	} else {
		y, m, day := selected.In(loc).Date()
		hh, mm, ss := ev.StartDate.In(loc).Clock()
		ev.StartDate = time.Date(y, m, day, hh, mm, ss, 0, loc)
	}
	ev.EndDate = ev.StartDate.Add(d)
}
