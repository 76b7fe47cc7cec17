// memory based implementation for testing purposes
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/cyp0633/caldora-series/event"
	"github.com/cyp0633/caldora-series/storage"
)

// Store implements storage.Store interface using in-memory maps.
// Values are copied on the way in and out.
type Store struct {
	mu        sync.RWMutex
	calendars map[string]*storage.Calendar // key: calendarID
	events    map[string]*event.Event      // key: eventID
	now       func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		calendars: make(map[string]*storage.Calendar),
		events:    make(map[string]*event.Event),
		now:       time.Now,
	}
}

// Calendar operations

func (s *Store) GetCalendar(_ context.Context, calendarID string) (*storage.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[calendarID]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "calendar not found",
		}
	}

	c := *cal
	return &c, nil
}

func (s *Store) CreateCalendar(_ context.Context, cal *storage.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cal.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "calendar id is required",
		}
	}
	if _, exists := s.calendars[cal.ID]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "calendar already exists",
		}
	}

	now := s.now()
	cal.Created = now
	cal.Modified = now
	c := *cal
	s.calendars[cal.ID] = &c

	return nil
}

// Event operations

func (s *Store) GetEvent(_ context.Context, eventID string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[eventID]
	if !ok || ev.Deleted {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	return ev.Clone(), nil
}

func (s *Store) FindEvents(_ context.Context, filter *storage.Filter) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*event.Event
	for _, ev := range s.events {
		if filter.Match(ev) {
			events = append(events, ev.Clone())
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.Before(events[j].StartDate)
		}
		return events[i].ID < events[j].ID
	})

	return events, nil
}

func (s *Store) CreateEvent(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "event id is required",
		}
	}
	if _, exists := s.events[ev.ID]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "event already exists",
		}
	}

	// Verify calendar exists
	if _, exists := s.calendars[ev.CalendarID]; !exists {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "calendar not found",
		}
	}

	now := s.now()
	ev.Created = now
	ev.Modified = now
	s.events[ev.ID] = ev.Clone()

	return nil
}

func (s *Store) UpdateEvent(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[ev.ID]
	if !ok {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	ev.Created = existing.Created
	ev.Modified = s.now()
	s.events[ev.ID] = ev.Clone()

	return nil
}

func (s *Store) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[eventID]
	if !ok || existing.Deleted {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	// Stored values are replaced, never mutated, so transaction snapshots stay intact.
	deleted := existing.Clone()
	deleted.Deleted = true
	deleted.Modified = s.now()
	s.events[eventID] = deleted

	return nil
}

// WithinTx runs fn on a copy of the maps and swaps it in if fn succeeds. Other
// writers are blocked for the duration.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{
		calendars: maps.Clone(s.calendars),
		events:    maps.Clone(s.events),
		now:       s.now,
	}

	if err := fn(tx); err != nil {
		return &storage.Error{
			Type:    storage.ErrTransaction,
			Message: "transaction rolled back",
			Err:     err,
		}
	}

	s.calendars = tx.calendars
	s.events = tx.events
	return nil
}
