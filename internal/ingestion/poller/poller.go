// Package poller implements polling ingestion: per-repository tickers that
// probe the platform API for new revisions and enqueue review tasks, with
// revision markers advanced only after the corresponding task completes.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/platform"
	"github.com/reviewguard/engine/internal/store"
)

// Enqueuer accepts a new pending task for scheduling.
type Enqueuer interface {
	Enqueue(ctx context.Context, task domain.Task) (string, error)
}

// Store is the persistence surface the poller needs.
type Store interface {
	store.RepoStore
	store.RevisionStore
}

// syncInterval is how often the repo list is re-read so newly enabled
// repositories pick up pollers without a restart.
const syncInterval = time.Minute

// markerAdvance records the compare-and-advance a completed task unlocks.
// Chaining prev to the preceding enqueued revision keeps the marker
// monotone: if an earlier task fails, every later advance CAS-conflicts
// and the marker stops at the last completed revision.
type markerAdvance struct {
	repoID string
	branch string
	kind   domain.MarkerKind
	prevID string
	newID  string
	at     time.Time
}

// Poller owns one polling goroutine per enabled polling repository.
type Poller struct {
	store    Store
	factory  platform.Factory
	enqueuer Enqueuer
	skip     domain.SkipMatcher
	logger   observability.Logger
	metrics  *observability.Metrics

	now func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	repos    map[string]*repoPoller
	advances map[string]markerAdvance // task_id -> pending marker advance
	wg       sync.WaitGroup
}

// repoPoller is the per-repository ticker state.
type repoPoller struct {
	repo     domain.Repository
	cancel   context.CancelFunc
	inFlight atomic.Bool
}

// New constructs a Poller.
func New(st Store, factory platform.Factory, enqueuer Enqueuer, skip domain.SkipMatcher, logger observability.Logger, metrics *observability.Metrics) *Poller {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Poller{
		store:    st,
		factory:  factory,
		enqueuer: enqueuer,
		skip:     skip,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		repos:    make(map[string]*repoPoller),
		advances: make(map[string]markerAdvance),
	}
}

// Start begins polling. Idempotent: a second Start while running is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel

	p.wg.Add(1)
	go p.syncLoop(runCtx)
}

// Stop halts all repository tickers. In-flight poll iterations finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	for _, rp := range p.repos {
		rp.cancel()
	}
	p.repos = make(map[string]*repoPoller)
	p.mu.Unlock()

	p.wg.Wait()
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RepoCount reports how many repositories currently have a ticker.
func (p *Poller) RepoCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.repos)
}

// syncLoop keeps the per-repo ticker set in line with the repos table.
func (p *Poller) syncLoop(ctx context.Context) {
	defer p.wg.Done()

	p.syncRepos(ctx)
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncRepos(ctx)
		}
	}
}

func (p *Poller) syncRepos(ctx context.Context) {
	repos, err := p.store.ListRepos(ctx)
	if err != nil {
		p.logger.LogError(ctx, "poller repo sync failed", map[string]interface{}{"error": err.Error()})
		return
	}

	want := make(map[string]domain.Repository)
	for _, repo := range repos {
		if pollable(repo) {
			want[repo.ID] = repo
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	for id, rp := range p.repos {
		if _, ok := want[id]; !ok {
			rp.cancel()
			delete(p.repos, id)
		}
	}
	for id, repo := range want {
		if existing, ok := p.repos[id]; ok {
			existing.repo = repo
			continue
		}
		repoCtx, cancel := context.WithCancel(ctx)
		rp := &repoPoller{repo: repo, cancel: cancel}
		p.repos[id] = rp
		p.wg.Add(1)
		go p.runRepo(repoCtx, rp)
	}
}

func pollable(repo domain.Repository) bool {
	if !repo.Enabled {
		return false
	}
	if repo.TriggerMode != domain.TriggerPolling && repo.TriggerMode != domain.TriggerBoth {
		return false
	}
	return repo.PollCommits || repo.PollMRs
}

// runRepo drives one repository's ticker, polling immediately and then at
// the configured interval. A tick that finds the previous one still in
// flight is skipped.
func (p *Poller) runRepo(ctx context.Context, rp *repoPoller) {
	defer p.wg.Done()

	interval := time.Duration(rp.repo.PollingIntervalMinutes) * time.Minute
	if interval < time.Minute {
		interval = time.Minute
	}

	p.tick(ctx, rp)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, rp)
		}
	}
}

func (p *Poller) tick(ctx context.Context, rp *repoPoller) {
	if !rp.inFlight.CompareAndSwap(false, true) {
		p.countPoll("skipped_in_flight")
		return
	}
	defer rp.inFlight.Store(false)

	if err := p.PollOnce(ctx, rp.repo); err != nil {
		p.countPoll("error")
		p.logger.LogWarning(ctx, "poll iteration failed", map[string]interface{}{
			"repo_id": rp.repo.ID, "error": err.Error(),
		})
		return
	}
	p.countPoll("ok")
}

// PollOnce performs one poll iteration for a repository: query the
// platform for new revisions, filter, and enqueue tasks. last_check_time
// is updated regardless of outcome.
func (p *Poller) PollOnce(ctx context.Context, repo domain.Repository) error {
	defer func() {
		if err := p.store.UpdateLastCheckTime(context.WithoutCancel(ctx), repo.ID, p.now().UTC()); err != nil {
			p.logger.LogWarning(ctx, "update last_check_time failed", map[string]interface{}{
				"repo_id": repo.ID, "error": err.Error(),
			})
		}
	}()

	client, err := p.factory.ClientFor(repo)
	if err != nil {
		return err
	}

	var pollErr error
	if repo.PollCommits {
		if err := p.pollCommits(ctx, repo, client); err != nil {
			pollErr = errors.Join(pollErr, fmt.Errorf("commits: %w", err))
		}
	}
	if repo.PollMRs {
		if err := p.pollMergeRequests(ctx, repo, client); err != nil {
			pollErr = errors.Join(pollErr, fmt.Errorf("merge requests: %w", err))
		}
	}
	return pollErr
}

func (p *Poller) pollCommits(ctx context.Context, repo domain.Repository, client platform.Client) error {
	marker, err := p.store.GetMarker(ctx, repo.ID, repo.Branch, domain.MarkerCommit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read marker: %w", err)
	}

	commits, err := client.ListCommitsSince(ctx, repo, repo.Branch, marker.LastSeenID)
	if err != nil {
		return err
	}

	prev := marker.LastSeenID
	// chain is the revision the next enqueued task's marker advance expects:
	// the marker itself, or the preceding enqueued revision. Filtered
	// commits move prev (the diff base) but not chain.
	chain := marker.LastSeenID
	for _, commit := range commits {
		if commit.Timestamp.Before(repo.EffectiveFrom) {
			prev = commit.SHA
			continue
		}
		if p.skip.MatchText(commit.Message) {
			p.logger.LogInfo(ctx, "revision opted out of review", map[string]interface{}{
				"repo_id": repo.ID, "revision": commit.SHA,
			})
			prev = commit.SHA
			continue
		}

		task := domain.Task{
			ID:          uuid.NewString(),
			RepoID:      repo.ID,
			Strategy:    domain.StrategyCommit,
			RevisionRef: commit.SHA,
			BaseRef:     prev,
			Branch:      repo.Branch,
			AuthorName:  commit.AuthorName,
			AuthorEmail: commit.AuthorEmail,
			CreatedAt:   p.now().UTC(),
			Status:      domain.TaskPending,
		}
		taskID, err := p.enqueuer.Enqueue(ctx, task)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				prev = commit.SHA
				chain = commit.SHA
				continue
			}
			return fmt.Errorf("enqueue %s: %w", commit.SHA, err)
		}

		p.registerAdvance(taskID, markerAdvance{
			repoID: repo.ID,
			branch: repo.Branch,
			kind:   domain.MarkerCommit,
			prevID: chain,
			newID:  commit.SHA,
			at:     commit.Timestamp,
		})
		prev = commit.SHA
		chain = commit.SHA
	}
	return nil
}

func (p *Poller) pollMergeRequests(ctx context.Context, repo domain.Repository, client platform.Client) error {
	marker, err := p.store.GetMarker(ctx, repo.ID, repo.Branch, domain.MarkerMR)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read marker: %w", err)
	}

	since := marker.LastSeenAt
	if since.Before(repo.EffectiveFrom) {
		since = repo.EffectiveFrom
	}

	mrs, err := client.ListMergeRequestsSince(ctx, repo, since)
	if err != nil {
		return err
	}

	prev := marker.LastSeenID
	for i := len(mrs) - 1; i >= 0; i-- { // oldest update first
		mr := mrs[i]
		if mr.TargetBranch != repo.Branch {
			continue
		}
		if p.skip.MatchText(mr.Title) || p.skip.MatchText(mr.Description) {
			continue
		}

		task := domain.Task{
			ID:          uuid.NewString(),
			RepoID:      repo.ID,
			Strategy:    domain.StrategyMergeReq,
			RevisionRef: mr.IID,
			BaseRef:     mr.TargetBranch,
			Branch:      mr.SourceBranch,
			AuthorName:  mr.AuthorName,
			CreatedAt:   p.now().UTC(),
			Status:      domain.TaskPending,
		}
		taskID, err := p.enqueuer.Enqueue(ctx, task)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return fmt.Errorf("enqueue MR %s: %w", mr.IID, err)
		}

		p.registerAdvance(taskID, markerAdvance{
			repoID: repo.ID,
			branch: repo.Branch,
			kind:   domain.MarkerMR,
			prevID: prev,
			newID:  mr.IID,
			at:     mr.UpdatedAt,
		})
		prev = mr.IID
	}
	return nil
}

func (p *Poller) registerAdvance(taskID string, adv markerAdvance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advances[taskID] = adv
}

// OnTaskFinalized is the post-finalize hook the scheduler calls for every
// terminal task. Completed polling tasks advance their revision marker;
// failed or cancelled ones leave it where it was, so the next poll lists
// the revision again and re-enqueues it.
func (p *Poller) OnTaskFinalized(ctx context.Context, task domain.Task) {
	p.mu.Lock()
	adv, ok := p.advances[task.ID]
	if ok {
		delete(p.advances, task.ID)
	}
	p.mu.Unlock()

	if !ok || task.Status != domain.TaskCompleted {
		return
	}

	err := p.store.CompareAndAdvance(ctx, adv.repoID, adv.branch, adv.kind, adv.prevID, adv.newID, adv.at)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			p.logger.LogInfo(ctx, "marker advance stopped by earlier incomplete revision", map[string]interface{}{
				"repo_id": adv.repoID, "revision": adv.newID,
			})
			return
		}
		p.logger.LogError(ctx, "marker advance failed", map[string]interface{}{
			"repo_id": adv.repoID, "revision": adv.newID, "error": err.Error(),
		})
	}
}

// TriggerManual enqueues an operator-requested task for the repository's
// newest revision under the given strategy.
func (p *Poller) TriggerManual(ctx context.Context, repo domain.Repository, strategy domain.Strategy) (string, error) {
	client, err := p.factory.ClientFor(repo)
	if err != nil {
		return "", err
	}

	switch strategy {
	case domain.StrategyMergeReq:
		mrs, err := client.ListMergeRequestsSince(ctx, repo, time.Time{})
		if err != nil {
			return "", err
		}
		for _, mr := range mrs {
			if mr.TargetBranch != repo.Branch {
				continue
			}
			task := domain.Task{
				ID:          uuid.NewString(),
				RepoID:      repo.ID,
				Strategy:    domain.StrategyMergeReq,
				RevisionRef: mr.IID,
				BaseRef:     mr.TargetBranch,
				Branch:      mr.SourceBranch,
				AuthorName:  mr.AuthorName,
				CreatedAt:   p.now().UTC(),
				Status:      domain.TaskPending,
			}
			return p.enqueuer.Enqueue(ctx, task)
		}
		return "", fmt.Errorf("no open merge request targets %s", repo.Branch)

	default:
		commits, err := client.ListCommitsSince(ctx, repo, repo.Branch, "")
		if err != nil {
			return "", err
		}
		if len(commits) == 0 {
			return "", fmt.Errorf("branch %s has no commits", repo.Branch)
		}
		head := commits[len(commits)-1]
		task := domain.Task{
			ID:          uuid.NewString(),
			RepoID:      repo.ID,
			Strategy:    domain.StrategyCommit,
			RevisionRef: head.SHA,
			Branch:      repo.Branch,
			AuthorName:  head.AuthorName,
			AuthorEmail: head.AuthorEmail,
			CreatedAt:   p.now().UTC(),
			Status:      domain.TaskPending,
		}
		return p.enqueuer.Enqueue(ctx, task)
	}
}

func (p *Poller) countPoll(outcome string) {
	if p.metrics != nil {
		p.metrics.PollIterations.WithLabelValues(outcome).Inc()
	}
}
