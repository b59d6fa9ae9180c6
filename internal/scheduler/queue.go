package scheduler

import (
	"context"
	"sync"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/store"
)

// Queue is the in-memory FIFO the workers drain. Every Enqueue persists
// the task first, so a restart can re-enqueue pending tasks from the Task
// Store instead of losing them.
type Queue struct {
	tasks   store.TaskStore
	metrics *observability.Metrics

	mu     sync.Mutex
	items  []domain.Task
	notify chan struct{}
}

// NewQueue constructs a queue backed by the Task Store.
func NewQueue(tasks store.TaskStore, metrics *observability.Metrics) *Queue {
	return &Queue{
		tasks:   tasks,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue persists the task and makes it available to workers. Returns
// store.ErrConflict if a non-terminal task for the same revision exists.
func (q *Queue) Enqueue(ctx context.Context, task domain.Task) (string, error) {
	id, err := q.tasks.Create(ctx, task)
	if err != nil {
		return "", err
	}
	task.ID = id
	q.push(task)
	return id, nil
}

// Rehydrate pushes an already-persisted pending task back onto the queue,
// used at startup.
func (q *Queue) Rehydrate(task domain.Task) {
	q.push(task)
}

func (q *Queue) push(task domain.Task) {
	q.mu.Lock()
	q.items = append(q.items, task)
	depth := len(q.items)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a task is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (domain.Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			if q.metrics != nil {
				q.metrics.QueueDepth.Set(float64(depth))
			}
			return task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Task{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Remove takes a queued task out of the FIFO before a worker claims it.
// Reports whether the task was found.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, task := range q.items {
		if task.ID == taskID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			if q.metrics != nil {
				q.metrics.QueueDepth.Set(float64(len(q.items)))
			}
			return true
		}
	}
	return false
}

// Len reports the number of waiting tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
