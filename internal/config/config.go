package config

// Config represents the engine's process-start configuration. Runtime-
// mutable values (model endpoint, planning defaults) live in the settings
// store instead.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Runner        RunnerConfig        `yaml:"runner"`
	Planner       PlannerConfig       `yaml:"planner"`
	Store         StoreConfig         `yaml:"store"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	BindAddr string `yaml:"bindAddr"`
}

// SchedulerConfig configures the worker pool.
type SchedulerConfig struct {
	Workers              int `yaml:"workers"`
	ShutdownGraceSeconds int `yaml:"shutdownGraceSeconds"`
}

// RunnerConfig configures assistant subprocess execution.
type RunnerConfig struct {
	// Binary is the code-assistant executable; an empty value defers to
	// the settings store.
	Binary string `yaml:"binary"`

	// BatchTimeoutMinutes is the per-batch wall-clock budget.
	BatchTimeoutMinutes int `yaml:"batchTimeoutMinutes"`

	// KillGraceSeconds is the SIGTERM-to-SIGKILL window.
	KillGraceSeconds int `yaml:"killGraceSeconds"`
}

// PlannerConfig configures change-set batching defaults.
type PlannerConfig struct {
	MaxTokensPerBatch int     `yaml:"maxTokensPerBatch"`
	ContextMapTokens  int     `yaml:"contextMapTokens"`
	CharsPerToken     float64 `yaml:"charsPerToken"`

	// PreciseTokens switches the per-file weight from the byte-ratio
	// heuristic to a real tokenizer.
	PreciseTokens bool `yaml:"preciseTokens"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WorkspaceConfig configures the working-copy mirror tree.
type WorkspaceConfig struct {
	// BaseDir roots the per-repository mirrors; safe to delete wholesale
	// to force re-clone.
	BaseDir string `yaml:"baseDir"`
}

// IngestionConfig configures event admission.
type IngestionConfig struct {
	// SkipPhrases replace the built-in review opt-out markers that authors
	// can place in commit messages or merge request text.
	SkipPhrases []string `yaml:"skipPhrases"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warning, error
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Merge combines multiple configuration instances, prioritising the latter ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.Server = chooseServer(base.Server, overlay.Server)
	result.Scheduler = chooseScheduler(base.Scheduler, overlay.Scheduler)
	result.Runner = chooseRunner(base.Runner, overlay.Runner)
	result.Planner = choosePlanner(base.Planner, overlay.Planner)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Workspace = chooseWorkspace(base.Workspace, overlay.Workspace)
	result.Ingestion = chooseIngestion(base.Ingestion, overlay.Ingestion)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)

	return result
}

func chooseServer(base, overlay ServerConfig) ServerConfig {
	if overlay.BindAddr != "" {
		return overlay
	}
	return base
}

func chooseScheduler(base, overlay SchedulerConfig) SchedulerConfig {
	result := base
	if overlay.Workers != 0 {
		result.Workers = overlay.Workers
	}
	if overlay.ShutdownGraceSeconds != 0 {
		result.ShutdownGraceSeconds = overlay.ShutdownGraceSeconds
	}
	return result
}

func chooseRunner(base, overlay RunnerConfig) RunnerConfig {
	result := base
	if overlay.Binary != "" {
		result.Binary = overlay.Binary
	}
	if overlay.BatchTimeoutMinutes != 0 {
		result.BatchTimeoutMinutes = overlay.BatchTimeoutMinutes
	}
	if overlay.KillGraceSeconds != 0 {
		result.KillGraceSeconds = overlay.KillGraceSeconds
	}
	return result
}

func choosePlanner(base, overlay PlannerConfig) PlannerConfig {
	result := base
	if overlay.MaxTokensPerBatch != 0 {
		result.MaxTokensPerBatch = overlay.MaxTokensPerBatch
	}
	if overlay.ContextMapTokens != 0 {
		result.ContextMapTokens = overlay.ContextMapTokens
	}
	if overlay.CharsPerToken != 0 {
		result.CharsPerToken = overlay.CharsPerToken
	}
	if overlay.PreciseTokens {
		result.PreciseTokens = true
	}
	return result
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay.Path != "" {
		return overlay
	}
	return base
}

func chooseWorkspace(base, overlay WorkspaceConfig) WorkspaceConfig {
	if overlay.BaseDir != "" {
		return overlay
	}
	return base
}

func chooseIngestion(base, overlay IngestionConfig) IngestionConfig {
	if len(overlay.SkipPhrases) > 0 {
		return overlay
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	result := base
	if overlay.Logging.Level != "" {
		result.Logging = overlay.Logging
	}
	if overlay.Metrics.Enabled {
		result.Metrics = overlay.Metrics
	}
	return result
}
