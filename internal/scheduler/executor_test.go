package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/planner"
	"github.com/reviewguard/engine/internal/runner"
	"github.com/reviewguard/engine/internal/store"
	"github.com/reviewguard/engine/internal/store/sqlite"
)

// fakeWorkspace satisfies Workspace without touching git.
type fakeWorkspace struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	dir   string
}

func newFakeWorkspace(dir string) *fakeWorkspace {
	return &fakeWorkspace{locks: make(map[string]*sync.Mutex), dir: dir}
}

func (f *fakeWorkspace) Lock(repoID string) func() {
	f.mu.Lock()
	mu, ok := f.locks[repoID]
	if !ok {
		mu = &sync.Mutex{}
		f.locks[repoID] = mu
	}
	f.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (f *fakeWorkspace) EnsureCloned(context.Context, domain.Repository) error { return nil }

func (f *fakeWorkspace) Checkout(_ context.Context, _ domain.Repository, _ string) (string, error) {
	return f.dir, nil
}

// scriptedRunner returns canned reports or behaviors per batch index.
type scriptedRunner struct {
	mu       sync.Mutex
	calls    []runner.Invocation
	behavior func(ctx context.Context, inv runner.Invocation) (string, error)
}

func (s *scriptedRunner) Run(ctx context.Context, inv runner.Invocation) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	s.mu.Unlock()
	if s.behavior != nil {
		return s.behavior(ctx, inv)
	}
	return "Issue 1: [suggestion] fine\nFile: " + inv.Files[0] + "\nLine: 1\n", nil
}

func (s *scriptedRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// mapWeigher weighs files by a fixed token table keyed on path.
type mapWeigher struct{ weights map[string]int }

func (m mapWeigher) Weight(patch string) int { return m.weights[patch] }

type executorEnv struct {
	store    *sqlite.Store
	executor *Executor
	runner   *scriptedRunner
	repo     domain.Repository
}

func newExecutorEnv(t *testing.T, deltas []domain.FileDelta, weights map[string]int, maxTokens int) *executorEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	repo := domain.Repository{
		ID: "repo-1", Name: "widget", CloneURL: "https://git.example.com/t/widget.git",
		Branch: "main", Platform: domain.PlatformGitea, Enabled: true,
		TriggerMode: domain.TriggerBoth, CloneStatus: domain.CloneCloned,
	}
	require.NoError(t, st.UpsertRepository(context.Background(), repo))

	scripted := &scriptedRunner{}
	cfg := func() ExecutorConfig {
		opts := planner.DefaultOptions()
		if maxTokens > 0 {
			opts.MaxTokensPerBatch = maxTokens
		}
		if weights != nil {
			opts.Weigher = mapWeigher{weights}
		}
		return ExecutorConfig{PlannerOptions: opts}
	}

	exec := NewExecutor(st, newFakeWorkspace(t.TempDir()), scripted, cfg, nil, nil)
	exec.listChanged = func(context.Context, string, string, string) ([]domain.FileDelta, error) {
		return deltas, nil
	}
	exec.filePatch = func(_ context.Context, _ string, _, _, path string) (string, error) {
		return path, nil // weights are keyed on path
	}

	return &executorEnv{store: st, executor: exec, runner: scripted, repo: repo}
}

func (env *executorEnv) newTask(t *testing.T, revision string) domain.Task {
	t.Helper()
	task := domain.Task{
		ID: uuid.NewString(), RepoID: env.repo.ID,
		Strategy: domain.StrategyCommit, RevisionRef: revision, BaseRef: revision + "~1",
		Branch: "main", CreatedAt: time.Now().UTC(), Status: domain.TaskPending,
	}
	_, err := env.store.Create(context.Background(), task)
	require.NoError(t, err)
	return task
}

func deltasFor(paths ...string) []domain.FileDelta {
	out := make([]domain.FileDelta, 0, len(paths))
	for _, p := range paths {
		out = append(out, domain.FileDelta{Path: p, Additions: 1})
	}
	return out
}

func TestEmptyChangeSetCompletesImmediately(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	task := env.newTask(t, "aaa")

	env.executor.Execute(context.Background(), task, nil)

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.Equal(t, 0, got.BatchTotal)
	assert.Equal(t, 0, got.IssuesCount)
	assert.Equal(t, 100, got.QualityScore)
	assert.Equal(t, 0, env.runner.callCount())
}

func TestSingleBatchAllFilesInChangeOrder(t *testing.T) {
	weights := map[string]int{"a.go": 200, "b.go": 400, "c.go": 600}
	env := newExecutorEnv(t, deltasFor("a.go", "b.go", "c.go"), weights, 5000)
	task := env.newTask(t, "bbb")

	env.executor.Execute(context.Background(), task, nil)

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.Equal(t, 1, got.BatchTotal)
	assert.Equal(t, 1, got.BatchCurrent)
	assert.Equal(t, 1, env.runner.callCount())
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, env.runner.calls[0].Files)
}

func TestMultiBatchPartialFailureStillCompletes(t *testing.T) {
	weights := map[string]int{
		"f1.go": 4000, "f2.go": 4000, "f3.go": 4000,
		"f4.go": 2000, "f5.go": 2000, "f6.go": 1000,
	}
	env := newExecutorEnv(t, deltasFor("f1.go", "f2.go", "f3.go", "f4.go", "f5.go", "f6.go"), weights, 5000)
	env.runner.behavior = func(_ context.Context, inv runner.Invocation) (string, error) {
		if inv.BatchIndex == 1 {
			return "", runner.ErrTimeout
		}
		return "Issue 1: [warning] w\nFile: " + inv.Files[0] + "\nLine: 2\n", nil
	}
	task := env.newTask(t, "ccc")

	env.executor.Execute(context.Background(), task, nil)

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.Equal(t, 4, got.BatchTotal)
	assert.Equal(t, 4, got.BatchCurrent)
	require.Len(t, got.BatchResults, 4)
	assert.Equal(t, domain.BatchSuccess, got.BatchResults[0].Status)
	assert.Equal(t, domain.BatchFailed, got.BatchResults[1].Status)
	assert.Equal(t, "timeout", got.BatchResults[1].Error)
	assert.Equal(t, domain.BatchSuccess, got.BatchResults[2].Status)
	assert.Equal(t, domain.BatchSuccess, got.BatchResults[3].Status)
	assert.Equal(t, []string{"f4.go", "f5.go", "f6.go"}, got.BatchResults[3].Files)
}

func TestAllBatchesFailTaskFails(t *testing.T) {
	weights := map[string]int{"f1.go": 4000, "f2.go": 4000}
	env := newExecutorEnv(t, deltasFor("f1.go", "f2.go"), weights, 5000)
	env.runner.behavior = func(context.Context, runner.Invocation) (string, error) {
		return "", runner.ErrTimeout
	}
	task := env.newTask(t, "ddd")

	env.executor.Execute(context.Background(), task, nil)

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Equal(t, domain.ErrorSubprocess, got.ErrorKind)
}

func TestIssuesPersistedWithScore(t *testing.T) {
	weights := map[string]int{"a.go": 100}
	env := newExecutorEnv(t, deltasFor("a.go"), weights, 5000)
	env.runner.behavior = func(context.Context, runner.Invocation) (string, error) {
		return `Issue 1: [critical] broken auth
File: a.go
Line: 5

Issue 2: [warning] loose check
File: a.go
Line: 9

Issue 3: [suggestion] rename
File: a.go
Line: 12
`, nil
	}
	task := env.newTask(t, "eee")

	env.executor.Execute(context.Background(), task, nil)

	got, issues, err := env.store.GetFull(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.Equal(t, 3, got.IssuesCount)
	assert.Len(t, issues, got.IssuesCount)
	assert.Equal(t, 1, got.CriticalCount)
	assert.Equal(t, 1, got.WarningCount)
	assert.Equal(t, 1, got.SuggestionCount)
	assert.Equal(t, 100-10-3-1, got.QualityScore)
	assert.Equal(t, domain.RiskHigh, got.RiskLevel)
}

func TestUnparsedReportCompletesWithFullScore(t *testing.T) {
	weights := map[string]int{"a.go": 100}
	env := newExecutorEnv(t, deltasFor("a.go"), weights, 5000)
	env.runner.behavior = func(context.Context, runner.Invocation) (string, error) {
		return "free-form prose with no recognizable structure", nil
	}
	task := env.newTask(t, "fff")

	env.executor.Execute(context.Background(), task, nil)

	got, err := env.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, got.Status)
	assert.Equal(t, 0, got.IssuesCount)
	assert.Equal(t, 100, got.QualityScore)
	assert.Equal(t, "unparsed", got.Verdict)
	assert.Contains(t, got.Report, "free-form prose")
}

func TestFinalizeHookObservesTerminalTask(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	var observed []domain.Task
	env.executor.AddFinalizeHook(func(_ context.Context, task domain.Task, _ []domain.Issue) {
		observed = append(observed, task)
	})
	task := env.newTask(t, "ggg")

	env.executor.Execute(context.Background(), task, nil)

	require.Len(t, observed, 1)
	assert.Equal(t, domain.TaskCompleted, observed[0].Status)
}

func TestAtMostOneNonTerminalTaskPerRevision(t *testing.T) {
	env := newExecutorEnv(t, nil, nil, 0)
	task := env.newTask(t, "hhh")

	dup := task
	dup.ID = uuid.NewString()
	_, err := env.store.Create(context.Background(), dup)
	assert.ErrorIs(t, err, store.ErrConflict)

	// After the first task completes, the same revision may be reviewed
	// again.
	env.executor.Execute(context.Background(), task, nil)
	_, err = env.store.Create(context.Background(), dup)
	assert.NoError(t, err)
}
