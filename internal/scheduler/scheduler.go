// Package scheduler implements the worker pool: a bounded set of workers
// draining a durable FIFO queue of review tasks, with per-task
// cancellation and graceful shutdown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/store"
)

// DefaultWorkers is the default worker pool size.
const DefaultWorkers = 2

// DefaultShutdownGrace is how long in-flight tasks keep running on shutdown
// before their subprocesses are terminated.
const DefaultShutdownGrace = 30 * time.Second

// ErrTaskNotFound is returned by Cancel for unknown or already-terminal
// tasks.
var ErrTaskNotFound = fmt.Errorf("scheduler: task not found or already terminal")

// taskHandle tracks one in-flight task's cancellation token.
type taskHandle struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string
}

func (h *taskHandle) cancelWith(reason string) {
	h.mu.Lock()
	h.reason = reason
	h.mu.Unlock()
	h.cancel()
}

func (h *taskHandle) cancelReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reason == "" {
		return "cancel"
	}
	return h.reason
}

// Scheduler owns the worker pool.
type Scheduler struct {
	queue    *Queue
	tasks    store.TaskStore
	executor *Executor
	logger   observability.Logger

	workers       int
	shutdownGrace time.Duration

	mu       sync.Mutex
	started  bool
	inFlight map[string]*taskHandle
	stopPull context.CancelFunc
	wg       sync.WaitGroup
}

// New constructs a Scheduler. workers <= 0 selects the default pool size.
func New(queue *Queue, tasks store.TaskStore, executor *Executor, logger observability.Logger, workers int, shutdownGrace time.Duration) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if shutdownGrace <= 0 {
		shutdownGrace = DefaultShutdownGrace
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Scheduler{
		queue:         queue,
		tasks:         tasks,
		executor:      executor,
		logger:        logger,
		workers:       workers,
		shutdownGrace: shutdownGrace,
		inFlight:      make(map[string]*taskHandle),
	}
}

// Start recovers persisted state and launches the worker pool: tasks left
// in processing by a previous run are failed, pending tasks re-enter the
// queue in created_at order.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	recovered, err := s.tasks.RecoverFromRestart(ctx)
	if err != nil {
		return fmt.Errorf("recover from restart: %w", err)
	}
	if recovered > 0 {
		s.logger.LogWarning(ctx, "tasks aborted by restart", map[string]interface{}{"count": recovered})
	}

	pending, err := s.tasks.PendingInOrder(ctx)
	if err != nil {
		return fmt.Errorf("re-enqueue pending tasks: %w", err)
	}
	for _, task := range pending {
		s.queue.Rehydrate(task)
	}

	pullCtx, cancel := context.WithCancel(ctx)
	s.stopPull = cancel
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(pullCtx)
	}
	return nil
}

func (s *Scheduler) worker(pullCtx context.Context) {
	defer s.wg.Done()

	for {
		task, err := s.queue.Pop(pullCtx)
		if err != nil {
			return
		}
		s.run(task)
	}
}

// run executes one task under its own cancellation token. The token is
// deliberately detached from the pull context: shutdown stops dequeues
// first and interrupts in-flight work only after the grace period.
func (s *Scheduler) run(task domain.Task) {
	taskCtx, cancel := context.WithCancel(context.Background())
	handle := &taskHandle{cancel: cancel}

	s.mu.Lock()
	s.inFlight[task.ID] = handle
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.LogError(context.Background(), "task execution panicked", map[string]interface{}{
				"task_id": task.ID, "panic": fmt.Sprintf("%v", r),
			})
		}
		cancel()
		s.mu.Lock()
		delete(s.inFlight, task.ID)
		s.mu.Unlock()
	}()

	s.executor.Execute(taskCtx, task, handle.cancelReason)
}

// Cancel cancels a task. A queued task is removed and finalized as
// cancelled; a processing task has its current batch subprocess terminated
// and is finalized as cancelled after cleanup.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	if s.queue.Remove(taskID) {
		task, err := s.tasks.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("load cancelled task: %w", err)
		}
		task.Status = domain.TaskCancelled
		task.FinishedAt = time.Now().UTC()
		if err := s.tasks.Finalize(ctx, taskID, domain.TaskCancelled, nil, task); err != nil {
			return fmt.Errorf("finalize cancelled task: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	handle, ok := s.inFlight[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	handle.cancelWith("cancel")
	return nil
}

// Stop shuts the pool down: dequeues stop immediately, in-flight tasks keep
// running for up to the grace period, then remaining tasks are interrupted
// with reason "shutdown". Tasks are not stopped at a batch boundary: a task
// whose batch finishes inside the grace period starts its next batch. Blocks
// until every worker has returned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopPull := s.stopPull
	s.mu.Unlock()

	stopPull()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.shutdownGrace):
	}

	s.mu.Lock()
	for _, handle := range s.inFlight {
		handle.cancelWith("shutdown")
	}
	s.mu.Unlock()

	<-done
}

// InFlight reports how many tasks are currently executing.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// IsNotFound reports whether err is the scheduler's unknown-task error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
