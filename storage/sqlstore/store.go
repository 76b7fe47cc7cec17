package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/storage"
)

// Store implements storage.Store on a gorm connection.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New wraps an already migrated connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(what string, err error) error {
	return &storage.Error{Type: storage.ErrNotFound, Message: what + " not found", Err: err}
}

func (s *Store) GetCalendar(ctx context.Context, calendarID string) (*storage.Calendar, error) {
	var row calendarRow
	if err := s.db.WithContext(ctx).Where("id = ?", calendarID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("calendar", err)
		}
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	return row.toCalendar(), nil
}

func (s *Store) CreateCalendar(ctx context.Context, cal *storage.Calendar) error {
	if cal.ID == "" {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "calendar id is required"}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&calendarRow{}).Where("id = ?", cal.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("create calendar: %w", err)
	}
	if count > 0 {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "calendar already exists"}
	}

	now := s.now()
	cal.Created = now
	cal.Modified = now
	if err := s.db.WithContext(ctx).Create(fromCalendar(cal)).Error; err != nil {
		return fmt.Errorf("create calendar: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*event.Event, error) {
	var row eventRow
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", eventID, false).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("event", err)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return row.toEvent(), nil
}

// FindEvents translates filter into SQL. The result agrees with storage.Filter.Match.
func (s *Store) FindEvents(ctx context.Context, filter *storage.Filter) ([]*event.Event, error) {
	if filter == nil {
		filter = &storage.Filter{}
	}

	q := s.db.WithContext(ctx).Model(&eventRow{})
	if !filter.IncludeDeleted {
		q = q.Where("deleted = ?", false)
	}
	if len(filter.CalendarIDs) > 0 {
		q = q.Where("calendar_id IN ?", filter.CalendarIDs)
	}

	start, hasStart := filter.Range.Start.Get()
	end, hasEnd := filter.Range.End.Get()

	if filter.OnlyRecurrence {
		q = q.Where("recurrence_rule <> ''")
		if hasEnd {
			q = q.Where("start_date < ?", dbTime(end))
		}
		if hasStart {
			q = q.Where("(recurrence_until IS NULL OR recurrence_until > ?)", dbTime(start))
		}
	} else {
		single := []string{"recurrence_rule = ''"}
		recurring := []string{"recurrence_rule <> ''"}
		var singleArgs, recurringArgs []any
		if hasStart {
			single = append(single, "end_date >= ?")
			singleArgs = append(singleArgs, dbTime(start))
			recurring = append(recurring, "(recurrence_until IS NULL OR recurrence_until >= ?)")
			recurringArgs = append(recurringArgs, dbTime(start))
		}
		if hasEnd {
			single = append(single, "start_date <= ?")
			singleArgs = append(singleArgs, dbTime(end))
			recurring = append(recurring, "start_date <= ?")
			recurringArgs = append(recurringArgs, dbTime(end))
		}
		cond := "((" + strings.Join(single, " AND ") + ") OR (" + strings.Join(recurring, " AND ") + "))"
		q = q.Where(cond, append(singleArgs, recurringArgs...)...)
	}

	var rows []eventRow
	if err := q.Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return events, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *event.Event) error {
	if ev.ID == "" {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "event id is required"}
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&eventRow{}).Where("id = ?", ev.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	if count > 0 {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "event already exists"}
	}

	// Verify calendar exists
	if err := db.Model(&calendarRow{}).Where("id = ?", ev.CalendarID).Count(&count).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	if count == 0 {
		return notFound("calendar", nil)
	}

	now := s.now()
	ev.Created = now
	ev.Modified = now
	if err := db.Create(fromEvent(ev)).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev *event.Event) error {
	db := s.db.WithContext(ctx)

	var existing eventRow
	if err := db.Where("id = ?", ev.ID).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("event", err)
		}
		return fmt.Errorf("update event: %w", err)
	}

	ev.Created = existing.CreatedAt
	ev.Modified = s.now()
	if err := db.Save(fromEvent(ev)).Error; err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	res := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ? AND deleted = ?", eventID, false).
		Updates(map[string]any{"deleted": true, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("event", nil)
	}
	return nil
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now})
	})
	if err != nil {
		return &storage.Error{
			Type:    storage.ErrTransaction,
			Message: "transaction rolled back",
			Err:     err,
		}
	}
	return nil
}
