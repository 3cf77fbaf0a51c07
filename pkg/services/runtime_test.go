package services

import (
	"errors"
	"testing"

	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/mocks"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRuntime_PublishFailuresDoNotFailCommands(t *testing.T) {
	j := &mocks.MockJournal{}
	j.On("Append", mock.Anything, mock.Anything).Return(errors.New("journal unavailable"))

	sink := &mocks.MockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return(errors.New("transport down"))

	f := newFixture(t, func(cfg *Config) {
		cfg.Journal = j
		cfg.Sink = sink
	})

	workflow := f.workflow(t)
	task := f.task(t, workflow.ID, "Collect W-2")

	moved, err := f.tasks.TransitionStatus(t.Context(), task.ID, TransitionRequest{
		Target:          models.TaskStatusInProgress,
		ActorID:         "alice",
		ExpectedVersion: task.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, f.reload(t, moved).Status)

	j.AssertExpectations(t)
	sink.AssertExpectations(t)

	for _, call := range sink.Calls {
		evts, ok := call.Arguments.Get(1).([]events.Event)
		require.True(t, ok)
		assert.NotEmpty(t, evts)
	}
}

func TestRuntime_NoEventsForEmptyChange(t *testing.T) {
	sink := &mocks.MockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, func(cfg *Config) {
		cfg.Sink = sink
	})

	workflow := f.workflow(t)
	first := f.task(t, workflow.ID, "Collect W-2")
	second := f.task(t, workflow.ID, "Prepare return", first.ID)
	calls := len(sink.Calls)

	_, err := f.tasks.AddDependency(t.Context(), second.ID, first.ID, "alice", second.Version)
	require.NoError(t, err)
	assert.Len(t, sink.Calls, calls)
}
