package mocks

import (
	"context"
	"time"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of automation.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, request automation.ActionRequest) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}

// MockOverdueScanner is a mock implementation of automation.OverdueScanner interface.
type MockOverdueScanner struct {
	mock.Mock
}

func (m *MockOverdueScanner) ScanOverdue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)

	return args.Int(0), args.Error(1)
}
