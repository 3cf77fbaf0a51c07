package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/channels/gochannel"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, evts...)

	return nil
}

func (s *recordingSink) received() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]events.Event(nil), s.events...)
}

func TestWatermillEventBus_RelaysEventsInOrder(t *testing.T) {
	logger := slog.Default()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger), 10)
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, logger)

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	sink := &recordingSink{}
	require.NoError(t, bus.Relay(t.Context(), sink))

	first, err := events.New(events.TaskUpdatedEvent, events.EntityTask, "t-1", 1, map[string]string{"status": "in_progress"})
	require.NoError(t, err)

	first.WorkflowID = "wf-1"

	second, err := events.New(events.TaskUpdatedEvent, events.EntityTask, "t-1", 2, map[string]string{"status": "review"})
	require.NoError(t, err)

	second.WorkflowID = "wf-1"

	require.NoError(t, bus.Emit(t.Context(), first, second))

	require.Eventually(t, func() bool {
		return len(sink.received()) == 2
	}, time.Second, 10*time.Millisecond)

	got := sink.received()
	assert.Equal(t, int64(1), got[0].Version)
	assert.Equal(t, int64(2), got[1].Version)
	assert.Equal(t, "wf-1", got[0].WorkflowID)
	assert.JSONEq(t, `{"status":"in_progress"}`, string(got[0].Payload))
}

// relayCommits emits one event per commit for a single task through bus and returns the
// versions a broker subscription received.
func relayCommits(t *testing.T, bus *WatermillEventBus, commits int, timeout time.Duration) []int64 {
	t.Helper()

	b := broker.New(slog.Default(), broker.WithQueueSize(commits+1))
	t.Cleanup(b.Close)

	sub, err := b.Subscribe(broker.Filter{WorkflowID: "wf-1"})
	require.NoError(t, err)

	require.NoError(t, bus.Relay(t.Context(), b))

	for v := int64(1); v <= int64(commits); v++ {
		event, err := events.New(events.TaskUpdatedEvent, events.EntityTask, "task-1", v, map[string]int64{"commit": v})
		require.NoError(t, err)

		event.WorkflowID = "wf-1"
		event.OrganizationID = "org-1"

		require.NoError(t, bus.Emit(t.Context(), event))
	}

	received := make([]int64, 0, commits)
	deadline := time.After(timeout)

	for len(received) < commits {
		select {
		case event, ok := <-sub.Events():
			require.True(t, ok, "subscription closed early")
			require.NotEqual(t, events.ResyncRequiredEvent, event.Type, "stream lost events: %v", sub.Err())

			received = append(received, event.Version)
		case <-deadline:
			t.Fatalf("received %d of %d events", len(received), commits)
		}
	}

	require.NoError(t, sub.Err())

	return received
}

func sequence(n int) []int64 {
	out := make([]int64, 0, n)
	for v := int64(1); v <= int64(n); v++ {
		out = append(out, v)
	}

	return out
}

func TestWatermillEventBus_GoChannelDeliversEveryCommitInOrder(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{}, 0)
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	const commits = 200

	assert.Equal(t, sequence(commits), relayCommits(t, bus, commits, 5*time.Second))
}

func TestWatermillEventBus_EmitNothing(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())
	defer bus.Close()

	assert.NoError(t, bus.Emit(t.Context()))
}
