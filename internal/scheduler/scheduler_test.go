package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/runner"
	"github.com/reviewguard/engine/internal/store"
)

func newScheduler(t *testing.T, env *executorEnv, workers int) (*Scheduler, *Queue) {
	t.Helper()
	queue := NewQueue(env.store, nil)
	sched := New(queue, env.store, env.executor, nil, workers, 200*time.Millisecond)
	return sched, queue
}

func waitForStatus(t *testing.T, env *executorEnv, taskID string, status domain.TaskStatus) domain.Task {
	t.Helper()
	var got domain.Task
	require.Eventually(t, func() bool {
		task, err := env.store.GetTask(context.Background(), taskID)
		if err != nil {
			return false
		}
		got = task
		return task.Status == status
	}, 5*time.Second, 10*time.Millisecond, "task %s never reached %s", taskID, status)
	return got
}

func TestWorkerPoolProcessesQueuedTasks(t *testing.T) {
	env := newExecutorEnv(t, deltasFor("a.go"), map[string]int{"a.go": 100}, 5000)
	sched, queue := newScheduler(t, env, 2)

	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "r1", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := queue.Enqueue(context.Background(), task)
	require.NoError(t, err)

	got := waitForStatus(t, env, task.ID, domain.TaskCompleted)
	assert.Equal(t, 1, got.BatchTotal)
}

func TestDuplicateEnqueueRejected(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	_, queue := newScheduler(t, env, 1)

	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "dup", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := queue.Enqueue(context.Background(), task)
	require.NoError(t, err)

	task.ID = uuid.NewString()
	_, err = queue.Enqueue(context.Background(), task)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 1, queue.Len())
}

func TestCancelPendingTask(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	sched, queue := newScheduler(t, env, 1)
	// Scheduler not started: the task stays queued.

	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "p1", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := queue.Enqueue(context.Background(), task)
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(context.Background(), task.ID))

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, got.Status)
	assert.Equal(t, 0, queue.Len())
}

func TestCancelProcessingTaskStopsRemainingBatches(t *testing.T) {
	weights := map[string]int{"f1.go": 4000, "f2.go": 4000, "f3.go": 4000}
	env := newExecutorEnv(t, deltasFor("f1.go", "f2.go", "f3.go"), weights, 5000)

	batchStarted := make(chan struct{}, 3)
	env.runner.behavior = func(ctx context.Context, inv runner.Invocation) (string, error) {
		if inv.BatchIndex == 1 {
			batchStarted <- struct{}{}
			<-ctx.Done() // blocks until cancelled
			return "", ctx.Err()
		}
		return "Issue 1: [suggestion] s\nFile: " + inv.Files[0] + "\nLine: 1\n", nil
	}

	sched, queue := newScheduler(t, env, 1)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "c1", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := queue.Enqueue(context.Background(), task)
	require.NoError(t, err)

	select {
	case <-batchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("batch 2 never started")
	}
	require.NoError(t, sched.Cancel(context.Background(), task.ID))

	got := waitForStatus(t, env, task.ID, domain.TaskCancelled)
	require.Len(t, got.BatchResults, 2)
	assert.Equal(t, domain.BatchSuccess, got.BatchResults[0].Status)
	assert.Equal(t, domain.BatchCancelled, got.BatchResults[1].Status)
	assert.Equal(t, 2, env.runner.callCount(), "batch 3 must not run")
}

func TestCancelUnknownTask(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	sched, _ := newScheduler(t, env, 1)

	err := sched.Cancel(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRestartRecovery(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)

	// Simulate a crash mid-task: a task left in processing.
	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "crashed", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := env.store.Create(context.Background(), task)
	require.NoError(t, err)
	require.NoError(t, env.store.MarkProcessing(context.Background(), task.ID))

	sched, _ := newScheduler(t, env, 1)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Equal(t, "aborted by restart", got.ErrorMsg)
}

func TestPendingTasksRehydratedInOrder(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		task := domain.Task{
			ID: uuid.NewString(), RepoID: env.repo.ID,
			Strategy: domain.StrategyCommit, RevisionRef: "r" + string(rune('a'+i)), BaseRef: "r0",
			Branch: "main", CreatedAt: base.Add(time.Duration(i) * time.Minute), Status: domain.TaskPending,
		}
		_, err := env.store.Create(context.Background(), task)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	sched, queue := newScheduler(t, env, 1)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	for _, id := range ids {
		waitForStatus(t, env, id, domain.TaskCompleted)
	}
	assert.Equal(t, 0, queue.Len())
}

func TestShutdownFailsInterruptedTasks(t *testing.T) {
	weights := map[string]int{"f1.go": 100}
	env := newExecutorEnv(t, deltasFor("f1.go"), weights, 5000)

	batchStarted := make(chan struct{}, 1)
	env.runner.behavior = func(ctx context.Context, inv runner.Invocation) (string, error) {
		batchStarted <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}

	sched, queue := newScheduler(t, env, 1)
	require.NoError(t, sched.Start(context.Background()))

	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: "s1", BaseRef: "r0",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := queue.Enqueue(context.Background(), task)
	require.NoError(t, err)

	select {
	case <-batchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("batch never started")
	}

	sched.Stop()

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Equal(t, "shutdown", got.ErrorMsg)
}
