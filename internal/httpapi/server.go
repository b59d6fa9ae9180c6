// Package httpapi exposes the engine's inbound HTTP surface: webhook
// ingestion, polling control, and review statistics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/export"
	"github.com/reviewguard/engine/internal/ingestion/webhook"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/store"
)

// PollControl is the poller surface the API drives.
type PollControl interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	RepoCount() int
	TriggerManual(ctx context.Context, repo domain.Repository, strategy domain.Strategy) (string, error)
}

// TaskControl is the scheduler surface the API drives.
type TaskControl interface {
	Cancel(ctx context.Context, taskID string) error
}

// Server wires the engine's HTTP routes.
type Server struct {
	store    store.Store
	poller   PollControl
	tasks    TaskControl
	enqueuer webhook.Enqueuer
	skip     domain.SkipMatcher
	logger   observability.Logger
	metrics  *observability.Metrics

	// pollCtx is the lifetime handed to poller restarts via the API.
	pollCtx context.Context

	router *mux.Router
}

// NewServer builds the route table.
func NewServer(st store.Store, poller PollControl, tasks TaskControl, enqueuer webhook.Enqueuer, skip domain.SkipMatcher, logger observability.Logger, metrics *observability.Metrics, pollCtx context.Context) *Server {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if pollCtx == nil {
		pollCtx = context.Background()
	}
	s := &Server{
		store:    st,
		poller:   poller,
		tasks:    tasks,
		enqueuer: enqueuer,
		skip:     skip,
		logger:   logger,
		metrics:  metrics,
		pollCtx:  pollCtx,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	for _, platform := range []domain.Platform{domain.PlatformGitLab, domain.PlatformGitea, domain.PlatformGitHub} {
		handler := webhook.NewHandler(platform, s.store, s.enqueuer, s.skip, s.logger, s.metrics)
		r.Handle("/webhook/"+string(platform), handler).Methods(http.MethodPost)
	}

	r.HandleFunc("/polling/start", s.handlePollingStart).Methods(http.MethodPost)
	r.HandleFunc("/polling/stop", s.handlePollingStop).Methods(http.MethodPost)
	r.HandleFunc("/polling/status", s.handlePollingStatus).Methods(http.MethodGet)
	r.HandleFunc("/polling/repos", s.handlePollingRepos).Methods(http.MethodGet)
	r.HandleFunc("/polling/repos/{repo_id}/trigger", s.handleTrigger).Methods(http.MethodPost)

	r.HandleFunc("/stats/reviews", s.handleListReviews).Methods(http.MethodGet)
	r.HandleFunc("/stats/review/{task_id}/full", s.handleReviewFull).Methods(http.MethodGet)
	r.HandleFunc("/stats/review/{task_id}/export", s.handleReviewExport).Methods(http.MethodGet)
	r.HandleFunc("/stats/review/{task_id}/cancel", s.handleReviewCancel).Methods(http.MethodPost)
	r.HandleFunc("/stats/review/{task_id}", s.handleReviewDelete).Methods(http.MethodDelete)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

func (s *Server) handlePollingStart(w http.ResponseWriter, _ *http.Request) {
	s.poller.Start(s.pollCtx)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handlePollingStop(w http.ResponseWriter, _ *http.Request) {
	s.poller.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handlePollingStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":    s.poller.Running(),
		"repo_count": s.poller.RepoCount(),
	})
}

// repoView is the API projection of a repository; credential material never
// leaves the store.
type repoView struct {
	ID                     string    `json:"repo_id"`
	Name                   string    `json:"name"`
	CloneURL               string    `json:"clone_url"`
	Branch                 string    `json:"branch"`
	Platform               string    `json:"platform"`
	TriggerMode            string    `json:"trigger_mode"`
	PollingIntervalMinutes int       `json:"polling_interval_minutes"`
	EffectiveFrom          time.Time `json:"effective_from"`
	PollCommits            bool      `json:"poll_commits"`
	PollMRs                bool      `json:"poll_mrs"`
	EnableComment          bool      `json:"enable_comment"`
	Enabled                bool      `json:"enabled"`
	CloneStatus            string    `json:"clone_status"`
	LastCheckTime          time.Time `json:"last_check_time"`
}

func (s *Server) handlePollingRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepos(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]repoView, 0, len(repos))
	for _, repo := range repos {
		views = append(views, repoView{
			ID:                     repo.ID,
			Name:                   repo.Name,
			CloneURL:               repo.CloneURL,
			Branch:                 repo.Branch,
			Platform:               string(repo.Platform),
			TriggerMode:            string(repo.TriggerMode),
			PollingIntervalMinutes: repo.PollingIntervalMinutes,
			EffectiveFrom:          repo.EffectiveFrom,
			PollCommits:            repo.PollCommits,
			PollMRs:                repo.PollMRs,
			EnableComment:          repo.EnableComment,
			Enabled:                repo.Enabled,
			CloneStatus:            string(repo.CloneStatus),
			LastCheckTime:          repo.LastCheckTime,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	repoID := mux.Vars(r)["repo_id"]

	var body struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	strategy := domain.Strategy(body.Strategy)
	if strategy != domain.StrategyCommit && strategy != domain.StrategyMergeReq {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown strategy %q", body.Strategy))
		return
	}

	repo, err := s.store.GetRepo(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("repository %s not found", repoID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	taskID, err := s.poller.TriggerManual(r.Context(), repo, strategy)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "task_id": taskID})
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 50
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	tasks, err := s.store.Query(r.Context(), store.TaskFilters{
		RepoID: query.Get("repo_id"),
		Status: domain.TaskStatus(query.Get("status")),
	}, store.SortCreatedAtDesc, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleReviewFull(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	task, issues, err := s.store.GetFull(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("task %s not found", taskID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":   task,
		"issues": issues,
	})
}

func (s *Server) handleReviewExport(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}

	task, issues, err := s.store.GetFull(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("task %s not found", taskID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch format {
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(export.RenderMarkdown(task, issues)))
	case "html":
		rendered, err := export.RenderHTML(task, issues)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(rendered))
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown export format %q", format))
	}
}

func (s *Server) handleReviewCancel(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	if err := s.tasks.Cancel(r.Context(), taskID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReviewDelete(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	if err := s.store.Delete(r.Context(), taskID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.LogError(context.Background(), "write response failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
