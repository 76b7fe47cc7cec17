package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cyp0633/caldora-series/event"
)

// MockStore implements the Store interface for testing
type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) GetCalendar(ctx context.Context, calendarID string) (*Calendar, error) {
	args := m.Called(ctx, calendarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Calendar), args.Error(1)
}

func (m *MockStore) CreateCalendar(ctx context.Context, cal *Calendar) error {
	args := m.Called(ctx, cal)
	return args.Error(0)
}

func (m *MockStore) GetEvent(ctx context.Context, eventID string) (*event.Event, error) {
	args := m.Called(ctx, eventID)
	switch v := args.Get(0).(type) {
	case func(context.Context, string) *event.Event:
		return v(ctx, eventID), args.Error(1)
	case *event.Event:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) FindEvents(ctx context.Context, filter *Filter) ([]*event.Event, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockStore) CreateEvent(ctx context.Context, ev *event.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStore) UpdateEvent(ctx context.Context, ev *event.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStore) DeleteEvent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// WithinTx runs fn against the mock itself unless the expectation returns an error.
func (m *MockStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

// --- Helper methods for setting up common test scenarios ---

// ExpectCalendar makes GetCalendar return a calendar with the given ID.
func (m *MockStore) ExpectCalendar(calendarID string) {
	m.On("GetCalendar", mock.Anything, calendarID).Return(&Calendar{ID: calendarID, Name: calendarID}, nil)
}

// ExpectEvent makes GetEvent return a clone of ev on each call.
func (m *MockStore) ExpectEvent(ev *event.Event) {
	m.On("GetEvent", mock.Anything, ev.ID).Return(func(context.Context, string) *event.Event {
		return ev.Clone()
	}, nil)
}

// ExpectMissingEvent makes GetEvent report eventID as not found.
func (m *MockStore) ExpectMissingEvent(eventID string) {
	m.On("GetEvent", mock.Anything, eventID).Return(nil, &Error{Type: ErrNotFound, Message: "event not found"})
}
