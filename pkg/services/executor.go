package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultExecutorQueueSize   = 64
	DefaultExecutorIdleTimeout = time.Minute
)

// Executor runs commands one at a time per workflow. Every workflow with pending work
// owns one goroutine; workflows never wait on each other, and a goroutine that stays
// idle for the idle timeout is reaped.
type Executor struct {
	logger      *slog.Logger
	queueSize   int
	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	jobs    chan job
	quit    chan struct{}
	stopped chan struct{}
	pending int
}

type job struct {
	ctx  context.Context //nolint:containedctx // carried to the workflow goroutine
	fn   func(ctx context.Context) error
	done chan error
}

func NewExecutor(logger *slog.Logger, queueSize int, idleTimeout time.Duration) *Executor {
	if queueSize <= 0 {
		queueSize = DefaultExecutorQueueSize
	}

	if idleTimeout <= 0 {
		idleTimeout = DefaultExecutorIdleTimeout
	}

	return &Executor{
		logger:      logger.With("module", "command_executor"),
		queueSize:   queueSize,
		idleTimeout: idleTimeout,
		workers:     make(map[string]*worker),
	}
}

// Do runs fn on the goroutine of workflowID after every command submitted before it.
// A command that was accepted runs to completion even if ctx is cancelled while it runs.
func (e *Executor) Do(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error {
	w, err := e.acquire(workflowID)
	if err != nil {
		return err
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-w.quit:
		e.release(w)

		return ErrExecutorClosed
	case <-ctx.Done():
		e.release(w)

		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-w.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrExecutorClosed
		}
	}
}

func (e *Executor) acquire(workflowID string) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}

	w, ok := e.workers[workflowID]
	if !ok {
		w = &worker{
			jobs:    make(chan job, e.queueSize),
			quit:    make(chan struct{}),
			stopped: make(chan struct{}),
		}
		e.workers[workflowID] = w

		e.wg.Add(1)

		go e.run(workflowID, w)
	}

	w.pending++

	return w, nil
}

func (e *Executor) release(w *worker) {
	e.mu.Lock()
	w.pending--
	e.mu.Unlock()
}

func (e *Executor) run(workflowID string, w *worker) {
	defer e.wg.Done()
	defer close(w.stopped)

	idle := time.NewTimer(e.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-w.jobs:
			j.done <- e.execute(workflowID, j)

			e.release(w)
			idle.Reset(e.idleTimeout)
		case <-idle.C:
			if e.reap(workflowID, w) {
				return
			}

			idle.Reset(e.idleTimeout)
		case <-w.quit:
			e.drain(w)

			return
		}
	}
}

// reap removes the worker if nothing is queued or about to be queued on it.
func (e *Executor) reap(workflowID string, w *worker) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w.pending > 0 {
		return false
	}

	delete(e.workers, workflowID)

	return true
}

func (e *Executor) drain(w *worker) {
	for {
		select {
		case j := <-w.jobs:
			j.done <- ErrExecutorClosed
		default:
			return
		}
	}
}

func (e *Executor) execute(workflowID string, j job) (err error) {
	if ctxErr := j.ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(j.ctx, "command panicked", "workflow_id", workflowID, "panic", r)
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()

	return j.fn(j.ctx)
}

// Workers returns the number of workflows that currently own a goroutine.
func (e *Executor) Workers() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.workers)
}

// Close rejects queued commands, waits for running ones and stops every goroutine.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return
	}

	e.closed = true
	for _, w := range e.workers {
		close(w.quit)
	}
	e.mu.Unlock()

	e.wg.Wait()
}
