package automation_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/channels/gochannel"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/mocks"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func subject(trigger models.RuleTrigger, priority models.Priority) automation.Subject {
	return automation.Subject{
		Trigger:  trigger,
		Workflow: &models.Workflow{ID: "wf-1", OrganizationID: "org-1", Name: "Audit"},
		Task:     &models.Task{ID: "t-1", WorkflowID: "wf-1", Priority: priority, Status: models.TaskStatusCompleted},
	}
}

func TestEngine_Match(t *testing.T) {
	engine := automation.NewEngine(slog.Default(), nil)

	urgentOnly := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":       "object",
				"properties": map[string]any{"priority": map[string]any{"const": "urgent"}},
				"required":   []any{"priority"},
			},
		},
	}

	rules := []*models.AutomationRule{
		{ID: "r-any", Trigger: models.TriggerTaskCompleted, Actions: []string{"notify_manager", "email_client"}, Active: true},
		{ID: "r-urgent", Trigger: models.TriggerTaskCompleted, Condition: urgentOnly, Actions: []string{"page_partner"}, Active: true},
		{ID: "r-inactive", Trigger: models.TriggerTaskCompleted, Actions: []string{"never"}, Active: false},
		{ID: "r-overdue", Trigger: models.TriggerTaskOverdue, Actions: []string{"remind"}, Active: true},
	}

	tests := []struct {
		name     string
		subject  automation.Subject
		expected []string
	}{
		{"normal completion", subject(models.TriggerTaskCompleted, models.PriorityNormal), []string{"notify_manager", "email_client"}},
		{"urgent completion", subject(models.TriggerTaskCompleted, models.PriorityUrgent), []string{"notify_manager", "email_client", "page_partner"}},
		{"overdue", subject(models.TriggerTaskOverdue, models.PriorityLow), []string{"remind"}},
		{"no rule for trigger", subject(models.TriggerClientResponse, models.PriorityLow), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := engine.Match(t.Context(), rules, tt.subject)

			actions := make([]string, 0, len(requests))
			for _, request := range requests {
				actions = append(actions, request.Action)
				assert.Equal(t, "wf-1", request.WorkflowID)
				assert.Equal(t, "org-1", request.OrganizationID)
				assert.Equal(t, "t-1", request.TaskID)
				assert.Equal(t, tt.subject.Trigger, request.Trigger)
			}

			assert.Equal(t, tt.expected, actions)
		})
	}
}

func TestEngine_MatchSkipsBrokenCondition(t *testing.T) {
	engine := automation.NewEngine(slog.Default(), nil)

	rules := []*models.AutomationRule{
		{ID: "broken", Trigger: models.TriggerTaskCompleted, Condition: map[string]any{"type": 12}, Actions: []string{"x"}, Active: true},
		{ID: "ok", Trigger: models.TriggerTaskCompleted, Actions: []string{"y"}, Active: true},
	}

	requests := engine.Match(t.Context(), rules, subject(models.TriggerTaskCompleted, models.PriorityLow))
	require.Len(t, requests, 1)
	assert.Equal(t, "ok", requests[0].RuleID)
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, automation.ValidateCondition(nil))
	assert.NoError(t, automation.ValidateCondition(map[string]any{"type": "object"}))
	assert.Error(t, automation.ValidateCondition(map[string]any{"type": 12}))
}

func TestEngine_FireDispatchesAndLogsFailures(t *testing.T) {
	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r automation.ActionRequest) bool {
		return r.Action == "notify_manager"
	})).Return(errors.New("smtp down")).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r automation.ActionRequest) bool {
		return r.Action == "email_client"
	})).Return(nil).Once()

	engine := automation.NewEngine(slog.Default(), dispatcher)

	rules := []*models.AutomationRule{
		{ID: "r-1", Trigger: models.TriggerTaskCompleted, Actions: []string{"notify_manager", "email_client"}, Active: true},
	}

	ctx, cancel := context.WithCancel(t.Context())
	fired := engine.Fire(ctx, rules, subject(models.TriggerTaskCompleted, models.PriorityLow))
	cancel()

	engine.Wait()

	assert.Equal(t, 2, fired)
	dispatcher.AssertExpectations(t)
}

func TestEngine_Notify(t *testing.T) {
	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r automation.ActionRequest) bool {
		return r.Action == automation.NotifyMentionAction && r.RuleID == "" && r.Data["mentions"] != nil
	})).Return(nil).Once()

	engine := automation.NewEngine(slog.Default(), dispatcher)

	s := subject(models.TriggerClientResponse, models.PriorityLow)
	s.Trigger = ""
	s.Data = map[string]any{"mentions": []string{"bob"}}

	engine.Notify(t.Context(), automation.NotifyMentionAction, s)
	engine.Wait()

	dispatcher.AssertExpectations(t)
}

func TestWatermillDispatcher_PublishesOnActionTopic(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{}, 10)
	require.NoError(t, err)

	defer pub.Close()

	messages, err := sub.Subscribe(t.Context(), events.ActionTopic)
	require.NoError(t, err)

	dispatcher := automation.NewWatermillDispatcher(pub)

	err = dispatcher.Dispatch(t.Context(), automation.ActionRequest{ID: "a-1", Action: "remind", WorkflowID: "wf-1"})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "wf-1", msg.Metadata.Get(events.EventMetadataKey))
		assert.Equal(t, "remind", msg.Metadata.Get("action"))
		assert.Contains(t, string(msg.Payload), `"action":"remind"`)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("action request was not published")
	}
}

func TestScheduler(t *testing.T) {
	_, err := automation.NewScheduler(slog.Default(), &mocks.MockOverdueScanner{}, "not a cron")
	require.Error(t, err)

	scanner := &mocks.MockOverdueScanner{}

	var once sync.Once

	called := make(chan struct{})

	scanner.On("ScanOverdue", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) { once.Do(func() { close(called) }) }).
		Return(1, nil)

	scheduler, err := automation.NewScheduler(slog.Default(), scanner, "@every 1s")
	require.NoError(t, err)

	require.NoError(t, scheduler.Start(t.Context()))

	select {
	case <-called:
	case <-time.After(3 * time.Second):
		t.Fatal("overdue scan was not scheduled")
	}

	scheduler.Stop()
}

func TestScheduler_RunLogsScanFailure(t *testing.T) {
	scanner := &mocks.MockOverdueScanner{}
	scanner.On("ScanOverdue", mock.Anything, mock.Anything).Return(0, errors.New("boom")).Once()

	scheduler, err := automation.NewScheduler(slog.Default(), scanner, "")
	require.NoError(t, err)

	scheduler.Run(t.Context())
	scheduler.Stop()

	scanner.AssertExpectations(t)
}
