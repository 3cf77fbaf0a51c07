package mocks

import (
	"context"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockSink is a mock implementation of events.Sink interface.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Emit(ctx context.Context, evts ...events.Event) error {
	args := m.Called(ctx, evts)

	return args.Error(0)
}
