package mocks

import (
	"context"
	"time"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/stretchr/testify/mock"
)

// MockJournal is a mock implementation of journal.Journal interface.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Append(ctx context.Context, evts ...events.Event) error {
	args := m.Called(ctx, evts)

	return args.Error(0)
}

func (m *MockJournal) After(ctx context.Context, entityID string, version int64) ([]events.Event, bool, error) {
	args := m.Called(ctx, entityID, version)

	evts, _ := args.Get(0).([]events.Event)

	return evts, args.Bool(1), args.Error(2)
}

func (m *MockJournal) Since(ctx context.Context, scope journal.Scope, since time.Time) ([]events.Event, bool, error) {
	args := m.Called(ctx, scope, since)

	evts, _ := args.Get(0).([]events.Event)

	return evts, args.Bool(1), args.Error(2)
}

func (m *MockJournal) Close() error {
	args := m.Called()

	return args.Error(0)
}
