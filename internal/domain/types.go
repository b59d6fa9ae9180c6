// Package domain holds the core value types of the review orchestration
// engine: repositories, revision markers, tasks, batches and issues. It has
// no dependency on storage, transport or subprocess concerns.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	FileStatusAdded    = "added"
	FileStatusModified = "modified"
	FileStatusDeleted  = "deleted"
	FileStatusRenamed  = "renamed"
)

// Diff represents a cumulative diff between two refs, as produced by the
// working-copy manager for a task's revision range.
type Diff struct {
	FromCommitHash string
	ToCommitHash   string
	Files          []FileDiff
}

// FileDiff captures the change for a single file.
type FileDiff struct {
	Path     string
	OldPath  string // set when Status == FileStatusRenamed
	Status   string
	Patch    string
	IsBinary bool
}

// Platform identifies the self-hosted Git platform a repository lives on.
type Platform string

const (
	PlatformGitLab Platform = "gitlab"
	PlatformGitea  Platform = "gitea"
	PlatformGitHub Platform = "github"
)

// AuthKind selects how the engine authenticates against a repository's
// platform API and remote.
type AuthKind string

const (
	AuthNone      AuthKind = "none"
	AuthHTTPBasic AuthKind = "http_basic"
	AuthToken     AuthKind = "token"
)

// Auth carries the credential material for one repository. The zero value
// is AuthNone.
type Auth struct {
	Kind     AuthKind
	User     string
	Password string
	Token    string
}

// TriggerMode controls which ingestion paths are active for a repository.
type TriggerMode string

const (
	TriggerWebhook TriggerMode = "webhook"
	TriggerPolling TriggerMode = "polling"
	TriggerBoth    TriggerMode = "both"
)

// CloneStatus tracks the Working-Copy Manager's mirror lifecycle for a
// repository.
type CloneStatus string

const (
	CloneAbsent  CloneStatus = "absent"
	CloneCloning CloneStatus = "cloning"
	CloneCloned  CloneStatus = "cloned"
	CloneFailed  CloneStatus = "failed"
)

// Repository is the engine's view of one configured Git repository. Its
// identity and settings are owned by an external settings store; the engine
// only reads it and updates its clone-status and last-check-time fields.
type Repository struct {
	ID       string
	Name     string
	CloneURL string
	Branch   string
	Platform Platform
	Auth     Auth

	TriggerMode            TriggerMode
	PollingIntervalMinutes int
	EffectiveFrom          time.Time
	WebhookSecret          string

	PollCommits   bool
	PollMRs       bool
	EnableComment bool
	Enabled       bool
	LocalPath     string

	CloneStatus   CloneStatus
	LastCheckTime time.Time
}

// NormalizedCloneURL returns the repository's clone URL lower-cased with any
// trailing ".git" suffix removed, for webhook-origin matching.
func (r Repository) NormalizedCloneURL() string {
	return NormalizeCloneURL(r.CloneURL)
}

// NormalizeCloneURL lower-cases a clone URL and strips a trailing ".git"
// suffix so that "https://git.example.com/a/b.git" and
// "https://git.example.com/a/b" compare equal.
func NormalizeCloneURL(url string) string {
	lowered := toLower(url)
	const suffix = ".git"
	if len(lowered) >= len(suffix) && lowered[len(lowered)-len(suffix):] == suffix {
		lowered = lowered[:len(lowered)-len(suffix)]
	}
	return lowered
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// MarkerKind distinguishes the two revision-marker series the poller keeps
// per (repo, branch).
type MarkerKind string

const (
	MarkerCommit MarkerKind = "commit"
	MarkerMR     MarkerKind = "mr"
)

// RevisionMarker is the last-seen revision id for one (repo, branch, kind).
// It only ever advances, and only after the task reviewing LastSeenID has
// completed.
type RevisionMarker struct {
	RepoID     string
	Branch     string
	Kind       MarkerKind
	LastSeenID string
	LastSeenAt time.Time
}

// Strategy selects how a task's revision range is interpreted.
type Strategy string

const (
	StrategyCommit   Strategy = "commit"
	StrategyMergeReq Strategy = "merge_request"
)

// TaskStatus is the task's position in the review state machine.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// BatchStatus is the outcome of one batch within a task.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchSuccess   BatchStatus = "success"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchResult records the outcome of invoking the Assistant Runner once for
// one batch of a task's Batch Plan.
type BatchResult struct {
	Index    int
	Status   BatchStatus
	Files    []string
	Oversize bool
	Error    string
}

// Severity classifies a parsed issue by how urgently it should be acted on.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
	SeverityInfo       Severity = "info"
)

// ErrorKind classifies why a task ended in status=failed.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorValidation ErrorKind = "validation"
	ErrorAuth       ErrorKind = "auth"
	ErrorExternal   ErrorKind = "external"
	ErrorSubprocess ErrorKind = "subprocess"
	ErrorParse      ErrorKind = "parse"
	ErrorInternal   ErrorKind = "internal"
	ErrorFatal      ErrorKind = "fatal"
)

// Issue is one finding extracted from an assistant report by the Report
// parser, ordered within a task by appearance order in the merged
// report.
type Issue struct {
	TaskID      string
	Severity    Severity
	Title       string
	Description string
	FilePath    string
	LineNumber  int
	CodeSnippet string
	Suggestion  string
	Category    string
}

// dedupKey computes the Report Parser's deduplication key for an issue:
// same file, line and title within a task are the same issue.
func (i Issue) dedupKey() string {
	payload := fmt.Sprintf("%s|%d|%s", i.FilePath, i.LineNumber, i.Title)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// DeduplicateIssues removes issues sharing a (file, line, title) key, keeping
// the first occurrence (appearance order is preserved).
func DeduplicateIssues(issues []Issue) []Issue {
	seen := make(map[string]struct{}, len(issues))
	out := make([]Issue, 0, len(issues))
	for _, iss := range issues {
		key := iss.dedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, iss)
	}
	return out
}

// RiskLevel is derived from the worst issue severity present in a task.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Task is one end-to-end attempt to analyze a revision of a repository: the
// unit of scheduling.
type Task struct {
	ID          string
	RepoID      string
	Strategy    Strategy
	RevisionRef string
	BaseRef     string
	Branch      string
	AuthorName  string
	AuthorEmail string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	Status TaskStatus

	BatchTotal   int
	BatchCurrent int
	BatchResults []BatchResult

	IssuesCount     int
	CriticalCount   int
	WarningCount    int
	SuggestionCount int
	QualityScore    int
	FilesReviewed   []string

	Verdict   string
	RiskLevel RiskLevel
	Report    string
	ErrorKind ErrorKind
	ErrorMsg  string

	ProcessingTimeSeconds float64
}

// NonTerminal reports whether the task is still in pending or processing
// state, used to enforce the at-most-one-task-per-revision rule.
func (t Task) NonTerminal() bool {
	return t.Status == TaskPending || t.Status == TaskProcessing
}

// QualityScore computes the deterministic score
// 100 - (10*critical + 3*warning + 1*suggestion), clamped to [0,100].
func QualityScore(critical, warning, suggestion int) int {
	score := 100 - (10*critical + 3*warning + 1*suggestion)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// DeriveRiskLevel derives the default risk level: high if any critical
// issue, medium if any warning, else low.
func DeriveRiskLevel(critical, warning int) RiskLevel {
	switch {
	case critical > 0:
		return RiskHigh
	case warning > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FileDelta is one changed file between two revisions, as reported by the
// Working-Copy Manager's list_changed_files operation.
type FileDelta struct {
	Path      string
	Additions int
	Deletions int
}
