// Package store defines the persistence ports consumed by the engine: the
// revision store, the task store, and a read path over configured
// repositories. Concrete implementations live in subpackages (sqlite).
package store

import (
	"context"
	"time"

	"github.com/reviewguard/engine/internal/domain"
)

// ErrNotFound is returned by single-row lookups when no matching row exists.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

// ErrConflict is returned by create/advance operations that fail an
// optimistic precondition (at-most-one task rule, revision marker CAS).
var ErrConflict = conflictError{}

type conflictError struct{}

func (conflictError) Error() string { return "store: conflict" }

// TaskFilters narrows a Query call. Zero values mean "no filter" for that
// field.
type TaskFilters struct {
	RepoID string
	Status domain.TaskStatus
}

// TaskSort selects the ordering of a Query call.
type TaskSort string

const (
	SortCreatedAtDesc TaskSort = "created_at_desc"
	SortCreatedAtAsc  TaskSort = "created_at_asc"
)

// RevisionStore is durable last-seen-revision bookkeeping per
// (repo, branch, kind).
type RevisionStore interface {
	// GetMarker returns the current marker, or ErrNotFound if none exists yet.
	GetMarker(ctx context.Context, repoID, branch string, kind domain.MarkerKind) (domain.RevisionMarker, error)

	// CompareAndAdvance advances the marker to newID/newAt only if the
	// stored LastSeenID currently equals expectedPrev (empty string means
	// "no marker exists yet"). Returns ErrConflict otherwise.
	CompareAndAdvance(ctx context.Context, repoID, branch string, kind domain.MarkerKind, expectedPrev, newID string, newAt time.Time) error

	// Reset is the operator-initiated marker reset; markers otherwise only
	// ever advance.
	Reset(ctx context.Context, repoID, branch string, kind domain.MarkerKind) error
}

// TaskStore holds durable task records, batch progress, and
// parsed issues.
type TaskStore interface {
	// Create inserts a new pending task. It returns ErrConflict if a
	// non-terminal task already exists for (RepoID, Strategy, RevisionRef):
	// the at-most-one rule.
	Create(ctx context.Context, task domain.Task) (string, error)

	// UpdateProgress persists the result of one batch and advances
	// BatchCurrent. Mutations for a given task_id are serialized.
	UpdateProgress(ctx context.Context, taskID string, result domain.BatchResult) error

	// MarkProcessing transitions a task from pending to processing and
	// records StartedAt.
	MarkProcessing(ctx context.Context, taskID string) error

	// SetBatchTotal records the batch plan size once planning has run.
	SetBatchTotal(ctx context.Context, taskID string, batchTotal int) error

	// Finalize transitions a task to a terminal status and persists its
	// issues and report. Terminal statuses are write-once: finalizing an
	// already-terminal task is a no-op error.
	Finalize(ctx context.Context, taskID string, status domain.TaskStatus, issues []domain.Issue, task domain.Task) error

	// GetTask returns the task without its issues.
	GetTask(ctx context.Context, taskID string) (domain.Task, error)

	// GetFull returns the task together with its persisted issues.
	GetFull(ctx context.Context, taskID string) (domain.Task, []domain.Issue, error)

	// Query lists tasks matching filters, newest first by default.
	Query(ctx context.Context, filters TaskFilters, sort TaskSort, limit, offset int) ([]domain.Task, error)

	// Delete removes a task and its issues permanently.
	Delete(ctx context.Context, taskID string) error

	// RecoverFromRestart marks every task left in TaskProcessing as failed
	// with reason "aborted by restart". Called once at startup before the
	// scheduler begins dequeuing; in-flight batches are never resumed.
	RecoverFromRestart(ctx context.Context) (int, error)

	// PendingInOrder returns pending tasks in created_at order, for
	// re-enqueue at startup.
	PendingInOrder(ctx context.Context) ([]domain.Task, error)
}

// RepoStore is the read path over configured repositories that the engine
// consumes for webhook matching, polling, and checkout. Repository identity
// itself is owned by the dashboard's settings API; this port exposes what
// ingestion and the scheduler need to read, the clone-status and
// last-check-time updates the engine makes, and an upsert used by the
// repos import command.
type RepoStore interface {
	GetRepo(ctx context.Context, repoID string) (domain.Repository, error)
	ListRepos(ctx context.Context) ([]domain.Repository, error)
	FindRepoByCloneURL(ctx context.Context, normalizedCloneURL string) (domain.Repository, error)
	UpsertRepository(ctx context.Context, repo domain.Repository) error
	UpdateCloneStatus(ctx context.Context, repoID string, status domain.CloneStatus) error
	UpdateLastCheckTime(ctx context.Context, repoID string, at time.Time) error
}

// SettingsStore is the key-value persistence behind the process-wide
// settings cache.
type SettingsStore interface {
	// GetSetting returns the stored value, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting writes the value, creating the key if needed.
	SetSetting(ctx context.Context, key, value string) error
}

// Store aggregates the ports behind one handle: one *sql.DB underneath,
// several views over it.
type Store interface {
	RevisionStore
	TaskStore
	RepoStore
	SettingsStore
	Close() error
}
