package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewguard/engine/internal/config"
)

func TestMergeOverlayWins(t *testing.T) {
	base := config.Config{
		Server:    config.ServerConfig{BindAddr: ":8844"},
		Scheduler: config.SchedulerConfig{Workers: 2, ShutdownGraceSeconds: 30},
		Planner:   config.PlannerConfig{MaxTokensPerBatch: 100_000, CharsPerToken: 3.5},
	}
	overlay := config.Config{
		Scheduler: config.SchedulerConfig{Workers: 4},
		Planner:   config.PlannerConfig{PreciseTokens: true},
	}

	merged := config.Merge(base, overlay)

	assert.Equal(t, ":8844", merged.Server.BindAddr)
	assert.Equal(t, 4, merged.Scheduler.Workers)
	assert.Equal(t, 30, merged.Scheduler.ShutdownGraceSeconds)
	assert.Equal(t, 100_000, merged.Planner.MaxTokensPerBatch)
	assert.True(t, merged.Planner.PreciseTokens)
}

func TestMergeZeroOverlayKeepsBase(t *testing.T) {
	base := config.Config{
		Store:     config.StoreConfig{Path: "/data/reviewguard.db"},
		Workspace: config.WorkspaceConfig{BaseDir: "/data/workspaces"},
		Runner:    config.RunnerConfig{Binary: "assistant", BatchTimeoutMinutes: 30},
	}

	merged := config.Merge(base, config.Config{})

	assert.Equal(t, base, merged)
}
