package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/planner"
	"github.com/reviewguard/engine/internal/reportparser"
	"github.com/reviewguard/engine/internal/runner"
	"github.com/reviewguard/engine/internal/store"
	"github.com/reviewguard/engine/internal/vcs"
)

// Workspace is the Working-Copy Manager surface the executor drives.
// *vcs.Manager satisfies it.
type Workspace interface {
	Lock(repoID string) func()
	EnsureCloned(ctx context.Context, repo domain.Repository) error
	Checkout(ctx context.Context, repo domain.Repository, ref string) (string, error)
}

// BatchRunner invokes the assistant for one batch. *runner.Runner
// satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (string, error)
}

// FinalizeHook observes every task reaching a terminal status. Hooks run
// after the terminal state is durable; the poller's marker advance and the
// comment poster attach here.
type FinalizeHook func(ctx context.Context, task domain.Task, issues []domain.Issue)

// ExecutorConfig carries the per-execution knobs the scheduler reads at
// task start, so settings changes apply to subsequent tasks without a
// restart.
type ExecutorConfig struct {
	PlannerOptions planner.Options
	Model          runner.ModelConfig
}

// Executor runs one task end to end: checkout, plan, per-batch assistant
// invocation, parse, finalize.
type Executor struct {
	store   store.Store
	ws      Workspace
	runner  BatchRunner
	config  func() ExecutorConfig
	logger  observability.Logger
	metrics *observability.Metrics
	hooks   []FinalizeHook

	// listChanged and filePatch are injectable for tests; the defaults
	// shell out through the vcs package.
	listChanged func(ctx context.Context, repoDir, baseRef, headRef string) ([]domain.FileDelta, error)
	filePatch   func(ctx context.Context, repoDir, baseRef, headRef, path string) (string, error)
}

// NewExecutor constructs an Executor.
func NewExecutor(st store.Store, ws Workspace, batchRunner BatchRunner, config func() ExecutorConfig, logger observability.Logger, metrics *observability.Metrics) *Executor {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Executor{
		store:       st,
		ws:          ws,
		runner:      batchRunner,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		listChanged: vcs.ListChangedFiles,
		filePatch:   vcs.FilePatch,
	}
}

// AddFinalizeHook registers a post-finalize observer. Not safe to call
// after execution has started.
func (e *Executor) AddFinalizeHook(hook FinalizeHook) {
	e.hooks = append(e.hooks, hook)
}

// externalBackoff is the transient-failure schedule for platform and VCS
// operations inside a task.
var externalBackoff = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// retryExternal retries a transient external operation up to three times.
func retryExternal(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = op(); err == nil {
			return nil
		}
		if attempt >= len(externalBackoff) {
			return err
		}
		select {
		case <-time.After(externalBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Execute drives the task state machine. ctx cancellation is the task's
// cancellation token; cancelReason distinguishes operator cancellation
// from engine shutdown.
func (e *Executor) Execute(ctx context.Context, task domain.Task, cancelReason func() string) {
	repo, err := e.store.GetRepo(ctx, task.RepoID)
	if err != nil {
		e.fail(ctx, task, domain.ErrorInternal, fmt.Sprintf("resolve repository: %v", err))
		return
	}

	if err := e.store.MarkProcessing(ctx, task.ID); err != nil {
		e.logger.LogError(ctx, "mark processing failed", map[string]interface{}{
			"task_id": task.ID, "error": err.Error(),
		})
		e.fail(ctx, task, domain.ErrorInternal, fmt.Sprintf("mark processing: %v", err))
		return
	}
	task.Status = domain.TaskProcessing
	task.StartedAt = time.Now().UTC()

	unlock := e.ws.Lock(repo.ID)
	defer unlock()

	if ctx.Err() != nil {
		e.finishInterrupted(ctx, task, cancelReason)
		return
	}

	checkoutPath, baseRef, headRef, err := e.prepareCheckout(ctx, repo, task)
	if err != nil {
		if ctx.Err() != nil {
			e.finishInterrupted(ctx, task, cancelReason)
			return
		}
		e.fail(ctx, task, domain.ErrorExternal, err.Error())
		return
	}

	files, deltas, err := e.collectChanges(ctx, checkoutPath, baseRef, headRef)
	if err != nil {
		if ctx.Err() != nil {
			e.finishInterrupted(ctx, task, cancelReason)
			return
		}
		e.fail(ctx, task, domain.ErrorExternal, fmt.Sprintf("list changed files: %v", err))
		return
	}

	cfg := e.config()
	plan := planner.PlanBatches(files, cfg.PlannerOptions)
	if err := e.store.SetBatchTotal(ctx, task.ID, len(plan.Batches)); err != nil {
		e.logger.LogWarning(ctx, "persist batch total failed", map[string]interface{}{
			"task_id": task.ID, "error": err.Error(),
		})
	}
	task.BatchTotal = len(plan.Batches)
	for _, d := range deltas {
		task.FilesReviewed = append(task.FilesReviewed, d.Path)
	}

	if len(plan.Batches) == 0 {
		task.Verdict = "reviewed"
		task.RiskLevel = domain.RiskLow
		task.QualityScore = 100
		e.finalize(ctx, task, domain.TaskCompleted, nil)
		return
	}

	outcome := e.runBatches(ctx, repo, task, plan, checkoutPath, baseRef, cfg)
	task.BatchCurrent = outcome.batchCurrent
	task.BatchResults = outcome.results
	task.Report = strings.Join(outcome.reports, "\n\n")

	if outcome.interrupted {
		e.finishInterrupted(ctx, task, cancelReason)
		return
	}

	if outcome.succeeded == 0 {
		task.ErrorKind = domain.ErrorSubprocess
		task.ErrorMsg = "all batches failed"
		e.finalize(ctx, task, domain.TaskFailed, nil)
		return
	}

	parsed := reportparser.Parse(task.ID, task.Report)
	critical, warning, suggestion := reportparser.CountBySeverity(parsed.Issues)
	task.IssuesCount = len(parsed.Issues)
	task.CriticalCount = critical
	task.WarningCount = warning
	task.SuggestionCount = suggestion
	task.QualityScore = domain.QualityScore(critical, warning, suggestion)
	task.Verdict = parsed.Verdict
	task.RiskLevel = parsed.RiskLevel

	e.finalize(ctx, task, domain.TaskCompleted, parsed.Issues)
}

// batchOutcome accumulates the per-batch loop's results.
type batchOutcome struct {
	results      []domain.BatchResult
	reports      []string
	succeeded    int
	batchCurrent int
	interrupted  bool
}

func (e *Executor) runBatches(ctx context.Context, repo domain.Repository, task domain.Task, plan planner.Plan, checkoutPath, baseRef string, cfg ExecutorConfig) batchOutcome {
	var out batchOutcome

	for _, batch := range plan.Batches {
		if ctx.Err() != nil {
			out.results = append(out.results, domain.BatchResult{
				Index:    batch.Index,
				Status:   domain.BatchCancelled,
				Files:    batch.Files,
				Oversize: batch.Oversize,
			})
			out.interrupted = true
			break
		}

		started := time.Now()
		report, err := e.runner.Run(ctx, runner.Invocation{
			TaskID:           task.ID,
			RepoID:           repo.ID,
			CheckoutPath:     checkoutPath,
			Strategy:         task.Strategy,
			RevisionRef:      task.RevisionRef,
			BaseRef:          baseRef,
			BatchIndex:       batch.Index,
			Files:            batch.Files,
			Oversize:         batch.Oversize,
			PromptPreamble:   runner.PreambleFor(task.Strategy),
			ContextMapTokens: plan.ContextMapTokens,
			Model:            cfg.Model,
		})
		if e.metrics != nil {
			e.metrics.BatchDuration.Observe(time.Since(started).Seconds())
		}

		result := domain.BatchResult{
			Index:    batch.Index,
			Status:   domain.BatchSuccess,
			Files:    batch.Files,
			Oversize: batch.Oversize,
		}
		switch {
		case err == nil:
			out.succeeded++
			out.reports = append(out.reports, report)
		case errors.Is(err, runner.ErrTimeout):
			result.Status = domain.BatchFailed
			result.Error = "timeout"
		case ctx.Err() != nil:
			result.Status = domain.BatchCancelled
			out.interrupted = true
		default:
			result.Status = domain.BatchFailed
			result.Error = err.Error()
		}

		out.results = append(out.results, result)
		out.batchCurrent++
		// Progress writes survive task cancellation so the final batch
		// state is observable.
		if err := e.store.UpdateProgress(context.WithoutCancel(ctx), task.ID, result); err != nil {
			e.logger.LogWarning(ctx, "persist batch progress failed", map[string]interface{}{
				"task_id": task.ID, "batch": batch.Index, "error": err.Error(),
			})
		}

		if out.interrupted {
			break
		}
	}
	return out
}

// prepareCheckout ensures the mirror exists, resolves the revision range,
// and resets the working tree to the head revision.
func (e *Executor) prepareCheckout(ctx context.Context, repo domain.Repository, task domain.Task) (checkoutPath, baseRef, headRef string, err error) {
	if repo.CloneStatus != domain.CloneCloned {
		_ = e.store.UpdateCloneStatus(ctx, repo.ID, domain.CloneCloning)
	}
	started := time.Now()
	if err := retryExternal(ctx, func() error { return e.ws.EnsureCloned(ctx, repo) }); err != nil {
		_ = e.store.UpdateCloneStatus(context.WithoutCancel(ctx), repo.ID, domain.CloneFailed)
		return "", "", "", fmt.Errorf("clone mirror: %w", err)
	}
	_ = e.store.UpdateCloneStatus(ctx, repo.ID, domain.CloneCloned)

	switch task.Strategy {
	case domain.StrategyMergeReq:
		// Branch names resolve through their remote-tracking refs; the
		// mirror never creates local branches for them.
		headRef = "origin/" + task.Branch
		base := task.BaseRef
		if base == "" {
			base = repo.Branch
		}
		baseRef = "origin/" + base
	default:
		headRef = task.RevisionRef
		baseRef = task.BaseRef
		if baseRef == "" {
			baseRef = task.RevisionRef + "^"
		}
	}

	err = retryExternal(ctx, func() error {
		var checkoutErr error
		checkoutPath, checkoutErr = e.ws.Checkout(ctx, repo, headRef)
		return checkoutErr
	})
	if e.metrics != nil {
		e.metrics.CheckoutTime.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return "", "", "", fmt.Errorf("checkout %s: %w", headRef, err)
	}
	return checkoutPath, baseRef, headRef, nil
}

// collectChanges lists the revision range's changed files and fetches each
// file's patch text for token weighing.
func (e *Executor) collectChanges(ctx context.Context, checkoutPath, baseRef, headRef string) ([]planner.ChangedFile, []domain.FileDelta, error) {
	var deltas []domain.FileDelta
	err := retryExternal(ctx, func() error {
		var listErr error
		deltas, listErr = e.listChanged(ctx, checkoutPath, baseRef, headRef)
		return listErr
	})
	if err != nil {
		return nil, nil, err
	}

	files := make([]planner.ChangedFile, 0, len(deltas))
	for _, delta := range deltas {
		patch, err := e.filePatch(ctx, checkoutPath, baseRef, headRef, delta.Path)
		if err != nil {
			e.logger.LogWarning(ctx, "patch text unavailable, weighing by name only", map[string]interface{}{
				"path": delta.Path, "error": err.Error(),
			})
			patch = delta.Path
		}
		files = append(files, planner.ChangedFile{Path: delta.Path, Patch: patch})
	}
	return files, deltas, nil
}

// finishInterrupted finalizes a task whose context was cancelled: operator
// cancellation produces status=cancelled, engine shutdown produces
// status=failed with reason "shutdown".
func (e *Executor) finishInterrupted(ctx context.Context, task domain.Task, cancelReason func() string) {
	reason := "cancel"
	if cancelReason != nil {
		reason = cancelReason()
	}
	if reason == "shutdown" {
		task.ErrorKind = domain.ErrorInternal
		task.ErrorMsg = "shutdown"
		e.finalize(ctx, task, domain.TaskFailed, nil)
		return
	}
	e.finalize(ctx, task, domain.TaskCancelled, nil)
}

func (e *Executor) fail(ctx context.Context, task domain.Task, kind domain.ErrorKind, reason string) {
	task.ErrorKind = kind
	task.ErrorMsg = reason
	e.finalize(ctx, task, domain.TaskFailed, nil)
}

// finalize makes the terminal state durable and notifies hooks. It uses a
// context detached from the task's cancellation so a cancelled task still
// persists.
func (e *Executor) finalize(ctx context.Context, task domain.Task, status domain.TaskStatus, issues []domain.Issue) {
	writeCtx := context.WithoutCancel(ctx)

	task.Status = status
	task.FinishedAt = time.Now().UTC()
	if !task.StartedAt.IsZero() {
		task.ProcessingTimeSeconds = task.FinishedAt.Sub(task.StartedAt).Seconds()
	}

	if err := e.store.Finalize(writeCtx, task.ID, status, issues, task); err != nil {
		e.logger.LogError(writeCtx, "finalize failed", map[string]interface{}{
			"task_id": task.ID, "status": string(status), "error": err.Error(),
		})
		return
	}
	if e.metrics != nil {
		e.metrics.TasksFinalized.WithLabelValues(string(status)).Inc()
	}
	e.logger.LogInfo(writeCtx, "task finalized", map[string]interface{}{
		"task_id": task.ID, "status": string(status),
		"issues": task.IssuesCount, "score": task.QualityScore,
	})

	for _, hook := range e.hooks {
		hook(writeCtx, task, issues)
	}
}
