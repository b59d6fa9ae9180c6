// Package webhook implements webhook ingestion: validating inbound
// platform events and enqueuing review tasks.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/store"
)

// maxBodyBytes bounds how much of a webhook delivery is read.
const maxBodyBytes = 10 << 20

// Enqueuer accepts a new pending task for scheduling. It returns
// store.ErrConflict when a non-terminal task for the same revision already
// exists.
type Enqueuer interface {
	Enqueue(ctx context.Context, task domain.Task) (string, error)
}

// Outcome is the webhook response body.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

const (
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

// Handler processes one platform's webhook deliveries.
type Handler struct {
	platform domain.Platform
	repos    store.RepoStore
	enqueuer Enqueuer
	skip     domain.SkipMatcher
	logger   observability.Logger
	metrics  *observability.Metrics

	// now is injectable for tests.
	now func() time.Time
}

// NewHandler constructs a webhook handler for one platform.
func NewHandler(platform domain.Platform, repos store.RepoStore, enqueuer Enqueuer, skip domain.SkipMatcher, logger observability.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Handler{
		platform: platform,
		repos:    repos,
		enqueuer: enqueuer,
		skip:     skip,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ServeHTTP validates and ingests one delivery. Processing is synchronous
// only up to task creation; review execution is asynchronous.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respond(w, http.StatusBadRequest, Outcome{Status: StatusIgnored, Reason: "unreadable body"})
		return
	}

	event, err := Decode(h.platform, r, body)
	if err != nil {
		h.count("unparseable")
		h.respond(w, http.StatusBadRequest, Outcome{Status: StatusIgnored, Reason: "unparseable body"})
		return
	}

	if event.Kind == domain.EventUnknown {
		h.count("unknown_event")
		h.logger.LogInfo(ctx, "ignoring unknown webhook event", map[string]interface{}{
			"platform": string(h.platform),
		})
		h.respond(w, http.StatusOK, Outcome{Status: StatusIgnored, Reason: "event not reviewable"})
		return
	}

	repo, err := h.repos.FindRepoByCloneURL(ctx, domain.NormalizeCloneURL(event.CloneURL()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.count("unmatched_repo")
			h.respond(w, http.StatusOK, Outcome{Status: StatusIgnored, Reason: "repository not configured"})
			return
		}
		h.logger.LogError(ctx, "repo lookup failed", map[string]interface{}{"error": err.Error()})
		h.respond(w, http.StatusInternalServerError, Outcome{Status: StatusIgnored, Reason: "internal error"})
		return
	}

	if !verifySignature(h.platform, r, body, repo.WebhookSecret) {
		h.count("bad_signature")
		h.logger.LogWarning(ctx, "webhook signature mismatch", map[string]interface{}{
			"repo_id": repo.ID, "platform": string(h.platform),
		})
		h.respond(w, http.StatusUnauthorized, Outcome{Status: StatusIgnored, Reason: "signature mismatch"})
		return
	}

	if reason, ok := h.admit(repo, event); !ok {
		h.count("filtered")
		h.respond(w, http.StatusOK, Outcome{Status: StatusIgnored, Reason: reason})
		return
	}

	task := h.taskFrom(repo, event)
	if _, err := h.enqueuer.Enqueue(ctx, task); err != nil {
		if errors.Is(err, store.ErrConflict) {
			h.count("duplicate")
			h.respond(w, http.StatusOK, Outcome{Status: StatusDuplicate})
			return
		}
		h.logger.LogError(ctx, "webhook enqueue failed", map[string]interface{}{
			"repo_id": repo.ID, "error": err.Error(),
		})
		h.respond(w, http.StatusInternalServerError, Outcome{Status: StatusIgnored, Reason: "internal error"})
		return
	}

	h.count("queued")
	h.respond(w, http.StatusOK, Outcome{Status: StatusQueued})
}

// admit applies the repository's ingestion filters. The returned reason is
// user-visible in the response body.
func (h *Handler) admit(repo domain.Repository, event domain.PlatformEvent) (string, bool) {
	if !repo.Enabled {
		return "repository disabled", false
	}
	if repo.TriggerMode != domain.TriggerWebhook && repo.TriggerMode != domain.TriggerBoth {
		return "webhook trigger disabled", false
	}

	switch event.Kind {
	case domain.EventPush:
		push := event.Push
		if push.Branch != repo.Branch {
			return "branch not configured", false
		}
		if !push.CommitTime.IsZero() && push.CommitTime.Before(repo.EffectiveFrom) {
			return "revision predates effective_from", false
		}
	case domain.EventMergeRequest:
		mr := event.MergeRequest
		if mr.TargetRef != repo.Branch {
			return "target branch not configured", false
		}
		if state := strings.ToLower(mr.State); state != "" && state != "opened" && state != "open" {
			return "merge request not open", false
		}
		if !mr.UpdatedAt.IsZero() && mr.UpdatedAt.Before(repo.EffectiveFrom) {
			return "revision predates effective_from", false
		}
	}
	if field, skip := h.skip.Match(event); skip {
		return "skip phrase in " + field, false
	}
	return "", true
}

func (h *Handler) taskFrom(repo domain.Repository, event domain.PlatformEvent) domain.Task {
	task := domain.Task{
		ID:        uuid.NewString(),
		RepoID:    repo.ID,
		CreatedAt: h.now().UTC(),
		Status:    domain.TaskPending,
	}

	switch event.Kind {
	case domain.EventPush:
		push := event.Push
		task.Strategy = domain.StrategyCommit
		task.RevisionRef = push.CommitSHA
		task.BaseRef = normalizeBaseSHA(push.BaseSHA)
		task.Branch = push.Branch
		task.AuthorName = push.AuthorName
		task.AuthorEmail = push.AuthorEmail
	case domain.EventMergeRequest:
		mr := event.MergeRequest
		task.Strategy = domain.StrategyMergeReq
		task.RevisionRef = mr.IID
		task.BaseRef = mr.TargetRef
		task.Branch = mr.SourceRef
		task.AuthorName = mr.AuthorName
		task.AuthorEmail = mr.AuthorEmail
	}
	return task
}

// normalizeBaseSHA drops the all-zero "before" SHA a platform sends for a
// newly created branch; the executor falls back to the revision's parent.
func normalizeBaseSHA(sha string) string {
	if sha == strings.Repeat("0", len(sha)) {
		return ""
	}
	return sha
}

func (h *Handler) respond(w http.ResponseWriter, code int, outcome Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(outcome)
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(string(h.platform), outcome).Inc()
	}
}
