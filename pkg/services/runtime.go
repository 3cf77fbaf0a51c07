package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/advisoros/taskcore/pkg/otelhelper"
	"github.com/advisoros/taskcore/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config wires the collaborators shared by the task graph, the registry and the
// collaboration log. Only Persistence is required.
type Config struct {
	Persistence persistence.Persistence
	Journal     journal.Journal
	Sink        events.Sink
	Automation  *automation.Engine
	Executor    *Executor
	Logger      *slog.Logger

	// RequireApprovals rejects completing a task while any approval is not approved.
	RequireApprovals bool

	Now func() time.Time
}

// Runtime is the single writer of workflow and task state.
type Runtime struct {
	persistence      persistence.Persistence
	journal          journal.Journal
	sink             events.Sink
	automation       *automation.Engine
	executor         *Executor
	logger           *slog.Logger
	tracer           trace.Tracer
	requireApprovals bool
	now              func() time.Time

	overdueMu  sync.Mutex
	overdueFor map[string]time.Time
}

func NewRuntime(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard
	}

	engine := cfg.Automation
	if engine == nil {
		engine = automation.NewEngine(logger, nil)
	}

	executor := cfg.Executor
	if executor == nil {
		executor = NewExecutor(logger, 0, 0)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Runtime{
		persistence:      cfg.Persistence,
		journal:          cfg.Journal,
		sink:             sink,
		automation:       engine,
		executor:         executor,
		logger:           logger.With("module", "task_store"),
		tracer:           otelhelper.Tracer("taskcore/services"),
		requireApprovals: cfg.RequireApprovals,
		now:              now,
		overdueFor:       make(map[string]time.Time),
	}
}

// Close stops the command executor and waits for dispatched automation actions.
func (r *Runtime) Close() {
	r.executor.Close()
	r.automation.Wait()
}

func (r *Runtime) clock() time.Time {
	return r.now().UTC()
}

// execute runs fn serialized with every other command of workflowID, inside a span.
func (r *Runtime) execute(ctx context.Context, op, workflowID string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	attrs = append(attrs, attribute.String(otelhelper.WorkflowIDKey, workflowID))

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, op, attrs...)
	defer span.End()

	err := r.executor.Do(ctx, workflowID, fn)
	otelhelper.SetError(span, err)

	return err
}

// load reads the workflow and its tasks into a new change.
func (r *Runtime) load(ctx context.Context, op, workflowID, actorID string) (*change, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	tasks, err := r.persistence.TaskRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return newChange(op, actorID, r.clock(), workflow, tasks), nil
}

// commit writes the change atomically, then distributes its events and fires its rules.
// Nothing after the write can fail the command.
func (r *Runtime) commit(ctx context.Context, c *change) error {
	changes := c.changeset()
	if changes.IsEmpty() {
		return nil
	}

	err := r.persistence.Commit(ctx, changes)
	if err != nil {
		return conflictFrom(c.op, err)
	}

	evts := c.events(r.logger)
	r.publish(ctx, evts)

	for _, subject := range c.triggers {
		subject.Workflow = c.workflow
		r.automation.Fire(ctx, c.workflow.AutomationRules, subject)
	}

	for _, notice := range c.notices {
		notice.subject.Workflow = c.workflow
		r.automation.Notify(ctx, notice.action, notice.subject)
	}

	return nil
}

func (r *Runtime) publish(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}

	if r.journal != nil {
		err := r.journal.Append(ctx, evts...)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to journal events", "count", len(evts), "error", err)
		}
	}

	err := r.sink.Emit(ctx, evts...)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to emit events", "count", len(evts), "error", err)
	}
}

// HealthCheck checks the health of the persistence layer.
func (r *Runtime) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := r.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
