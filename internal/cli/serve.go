package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/reviewguard/engine/internal/config"
	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/httpapi"
	"github.com/reviewguard/engine/internal/ingestion/poller"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/planner"
	"github.com/reviewguard/engine/internal/platform"
	"github.com/reviewguard/engine/internal/platform/gitea"
	"github.com/reviewguard/engine/internal/platform/github"
	"github.com/reviewguard/engine/internal/platform/gitlab"
	"github.com/reviewguard/engine/internal/redaction"
	"github.com/reviewguard/engine/internal/runner"
	"github.com/reviewguard/engine/internal/scheduler"
	"github.com/reviewguard/engine/internal/settings"
	"github.com/reviewguard/engine/internal/store/sqlite"
	"github.com/reviewguard/engine/internal/vcs"
)

func newServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the review engine: HTTP server, poller and worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := observability.NewStdLogger(redaction.NewEngine(), observability.ParseLevel(cfg.Observability.Logging.Level))

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	st, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	settingsStore := settings.NewStore(st)
	workspace := vcs.NewManager(cfg.Workspace.BaseDir)

	assistantBinary := cfg.Runner.Binary
	if assistantBinary == "" {
		current, err := settingsStore.Get(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		assistantBinary = current.AssistantBinary
	}
	batchRunner := runner.NewRunner(runner.Options{
		Binary:       assistantBinary,
		BatchTimeout: time.Duration(cfg.Runner.BatchTimeoutMinutes) * time.Minute,
		KillGrace:    time.Duration(cfg.Runner.KillGraceSeconds) * time.Second,
	}, logger)

	factory := platform.NewClientFactory(map[domain.Platform]platform.Constructor{
		domain.PlatformGitLab: func() platform.Client { return gitlab.NewClient() },
		domain.PlatformGitea:  func() platform.Client { return gitea.NewClient() },
		domain.PlatformGitHub: func() platform.Client { return github.NewClient() },
	})
	poster := platform.NewPoster(factory, logger)

	executorConfig := func() scheduler.ExecutorConfig {
		current, err := settingsStore.Get(context.Background())
		if err != nil {
			logger.LogWarning(context.Background(), "settings unavailable, using defaults", map[string]interface{}{"error": err.Error()})
			current = settings.Defaults()
		}
		opts := planner.Options{
			MaxTokensPerBatch: current.MaxTokensPerBatch,
			ContextMapTokens:  current.ContextMapTokens,
			Weigher:           planner.NewByteRatioWeigher(current.CharsPerToken),
		}
		if cfg.Planner.PreciseTokens || current.PreciseTokens {
			opts.Weigher = planner.NewPreciseWeigher(current.CharsPerToken)
		}
		return scheduler.ExecutorConfig{
			PlannerOptions: opts,
			Model: runner.ModelConfig{
				Endpoint: current.ModelEndpoint,
				APIKey:   current.ModelAPIKey,
				Model:    current.ModelName,
			},
		}
	}

	skipMatcher := domain.NewSkipMatcher(cfg.Ingestion.SkipPhrases...)

	queue := scheduler.NewQueue(st, metrics)
	executor := scheduler.NewExecutor(st, workspace, batchRunner, executorConfig, logger, metrics)
	pollerSvc := poller.New(st, factory, queue, skipMatcher, logger, metrics)

	executor.AddFinalizeHook(func(hookCtx context.Context, task domain.Task, _ []domain.Issue) {
		pollerSvc.OnTaskFinalized(hookCtx, task)
	})
	executor.AddFinalizeHook(func(hookCtx context.Context, task domain.Task, issues []domain.Issue) {
		if task.Status != domain.TaskCompleted {
			return
		}
		repo, err := st.GetRepo(hookCtx, task.RepoID)
		if err != nil {
			logger.LogWarning(hookCtx, "comment delivery skipped", map[string]interface{}{
				"task_id": task.ID, "error": err.Error(),
			})
			return
		}
		poster.Post(hookCtx, repo, task, issues)
	})

	sched := scheduler.New(queue, st, executor, logger,
		cfg.Scheduler.Workers, time.Duration(cfg.Scheduler.ShutdownGraceSeconds)*time.Second)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	pollerSvc.Start(ctx)

	api := httpapi.NewServer(st, pollerSvc, sched, queue, skipMatcher, logger, metrics, ctx)
	server := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: api,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogInfo(ctx, "http server listening", map[string]interface{}{"addr": cfg.Server.BindAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		pollerSvc.Stop()
		sched.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.LogInfo(context.Background(), "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	pollerSvc.Stop()
	sched.Stop()
	return nil
}
