// Package tasks runs fetch operations as cancellable, non-blocking units
// of work. The UI submits an operation, holds only the returned handle, and
// polls or waits for its outcome; it never blocks on the fetch itself.
package tasks

import (
	"context"
	"sync"

	"github.com/lazyhub/lazyhub/pkg/logging"
)

// Status is the lifecycle state of a fetch task
type Status int

const (
	// Running means the operation has been submitted and not yet resolved
	Running Status = iota
	// Done means the operation completed and its result is available
	Done
	// Failed means the operation resolved with an error
	Failed
	// Cancelled means the task was cancelled; any partial result was
	// discarded
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Operation is one logical fetch. It must honor context cancellation at
// its suspension points (before dispatch, between pages).
type Operation func(ctx context.Context) (any, error)

// Task is the handle to one submitted operation. Callers only query
// status and outcome; the running state stays with the scheduler.
type Task struct {
	id     uint64
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	result any
	err    error
}

// ID returns the task's identity
func (t *Task) ID() uint64 {
	return t.id
}

// Name returns the operation name given at submission
func (t *Task) Name() string {
	return t.name
}

// Status returns the task's current lifecycle state
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the completed result, or nil unless the task is Done
func (t *Task) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != Done {
		return nil
	}
	return t.result
}

// Err returns the failure, or nil unless the task is Failed
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != Failed {
		return nil
	}
	return t.err
}

// Wait blocks until the task resolves or the given context ends
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve records the outcome exactly once. A cancelled task discards the
// operation's return values entirely; partial results are never delivered.
func (t *Task) resolve(ctx context.Context, result any, err error) {
	t.mu.Lock()
	switch {
	case ctx.Err() != nil:
		t.status = Cancelled
	case err != nil:
		t.status = Failed
		t.err = err
	default:
		t.status = Done
		t.result = result
	}
	t.mu.Unlock()
	close(t.done)
}

// Scheduler owns the lifecycle of submitted tasks. Tasks run concurrently
// and share the response cache and rate governor through their operations;
// the scheduler itself holds no lock while an operation runs.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[uint64]*Task
	nextID uint64
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewScheduler creates a scheduler
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		tasks:  make(map[uint64]*Task),
		logger: logger.WithComponent("tasks"),
	}
}

// Submit starts the operation as an independently cancellable unit of
// work and returns its handle immediately.
func (s *Scheduler) Submit(ctx context.Context, name string, op Operation) *Task {
	taskCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nextID++
	task := &Task{
		id:     s.nextID,
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
		status: Running,
	}
	s.tasks[task.id] = task
	s.mu.Unlock()

	s.logger.Debug("task submitted", "id", task.id, "name", name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := op(taskCtx)
		task.resolve(taskCtx, result, err)
		cancel()

		status := task.Status()
		switch status {
		case Failed:
			s.logger.Warn("task failed", "id", task.id, "name", name, "error", err)
		default:
			s.logger.Debug("task resolved", "id", task.id, "name", name, "status", status.String())
		}
	}()

	return task
}

// Cancel requests cooperative cancellation of a task. An in-flight network
// call is never interrupted; its result is discarded when it returns.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	task.cancel()
	return true
}

// Get returns the handle for a task id
func (s *Scheduler) Get(id uint64) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return task, ok
}

// Forget drops a resolved task from the registry. Running tasks are kept.
func (s *Scheduler) Forget(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok && task.Status() != Running {
		delete(s.tasks, id)
	}
}

// Shutdown cancels every task and waits for all of them to resolve
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, task := range s.tasks {
		task.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
