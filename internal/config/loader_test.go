package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	require.NoError(t, err)

	assert.Equal(t, ":8844", cfg.Server.BindAddr)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 30, cfg.Scheduler.ShutdownGraceSeconds)
	assert.Equal(t, 30, cfg.Runner.BatchTimeoutMinutes)
	assert.Equal(t, 10, cfg.Runner.KillGraceSeconds)
	assert.Equal(t, 100_000, cfg.Planner.MaxTokensPerBatch)
	assert.Equal(t, 262_144, cfg.Planner.ContextMapTokens)
	assert.InDelta(t, 3.5, cfg.Planner.CharsPerToken, 0.001)
	assert.True(t, cfg.Observability.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  bindAddr: ":9000"
scheduler:
  workers: 5
planner:
  maxTokensPerBatch: 50000
  preciseTokens: true
store:
  path: /tmp/engine.db
ingestion:
  skipPhrases: ["#wip", "[draft]"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewguard.yaml"), content, 0o644))

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.BindAddr)
	assert.Equal(t, 5, cfg.Scheduler.Workers)
	assert.Equal(t, 50_000, cfg.Planner.MaxTokensPerBatch)
	assert.True(t, cfg.Planner.PreciseTokens)
	assert.Equal(t, "/tmp/engine.db", cfg.Store.Path)
	assert.Equal(t, []string{"#wip", "[draft]"}, cfg.Ingestion.SkipPhrases)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENGINE_DATA_DIR", "/srv/data")
	content := []byte(`
store:
  path: ${ENGINE_DATA_DIR}/engine.db
workspace:
  baseDir: $ENGINE_DATA_DIR/workspaces
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewguard.yaml"), content, 0o644))

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "/srv/data/engine.db", cfg.Store.Path)
	assert.Equal(t, "/srv/data/workspaces", cfg.Workspace.BaseDir)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewguard.yaml"), []byte("server: ["), 0o644))

	_, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	assert.Error(t, err)
}
