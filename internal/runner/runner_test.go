package runner_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/runner"
)

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "assistant.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// initRepo makes dir a git repository with one commit so the runner's
// working-copy assertion has something to diff against.
func initRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	for _, args := range [][]string{{"add", "."}, {"commit", "-m", "init"}} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run(), "git %v", args)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `echo "Issue 1: [warning] something"`)

	r := runner.NewRunner(runner.Options{Binary: script, BatchTimeout: time.Minute}, nil)
	report, err := r.Run(context.Background(), runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyCommit,
		RevisionRef:  "abc",
		Files:        []string{"main.go"},
	})

	require.NoError(t, err)
	assert.Contains(t, report, "Issue 1: [warning] something")
}

func TestRunReceivesManifestOnStdin(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `cat`)

	r := runner.NewRunner(runner.Options{Binary: script, BatchTimeout: time.Minute}, nil)
	report, err := r.Run(context.Background(), runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyMergeReq,
		RevisionRef:  "5",
		BaseRef:      "main",
		BatchIndex:   2,
		Files:        []string{"a.go", "b.go"},
	})

	require.NoError(t, err)
	assert.Contains(t, report, `"strategy":"merge_request"`)
	assert.Contains(t, report, `"batch_index":2`)
	assert.Contains(t, report, `"a.go"`)
}

func TestRunCredentialsOnlyInChildEnv(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `echo "key=$MODEL_API_KEY endpoint=$MODEL_ENDPOINT"`)

	r := runner.NewRunner(runner.Options{Binary: script, BatchTimeout: time.Minute}, nil)
	report, err := r.Run(context.Background(), runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyCommit,
		RevisionRef:  "abc",
		Model: runner.ModelConfig{
			Endpoint: "http://localhost:11434",
			APIKey:   "batch-secret",
		},
	})

	require.NoError(t, err)
	assert.Contains(t, report, "key=batch-secret")
	assert.Contains(t, report, "endpoint=http://localhost:11434")
	assert.Empty(t, os.Getenv("MODEL_API_KEY"))
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `sleep 60`)

	r := runner.NewRunner(runner.Options{
		Binary:       script,
		BatchTimeout: 200 * time.Millisecond,
		KillGrace:    time.Second,
	}, nil)

	start := time.Now()
	_, err := r.Run(context.Background(), runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyCommit,
		RevisionRef:  "abc",
	})

	require.ErrorIs(t, err, runner.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `sleep 60`)

	r := runner.NewRunner(runner.Options{
		Binary:       script,
		BatchTimeout: time.Minute,
		KillGrace:    time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyCommit,
		RevisionRef:  "abc",
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	script := writeScript(t, t.TempDir(), `exit 3`)

	r := runner.NewRunner(runner.Options{Binary: script, BatchTimeout: time.Minute}, nil)
	_, err := r.Run(context.Background(), runner.Invocation{
		TaskID:       "t1",
		RepoID:       "r1",
		CheckoutPath: dir,
		Strategy:     domain.StrategyCommit,
		RevisionRef:  "abc",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "assistant exited")
}

func TestPreambleFor(t *testing.T) {
	assert.Contains(t, runner.PreambleFor(domain.StrategyCommit), "single pushed commit")
	assert.Contains(t, runner.PreambleFor(domain.StrategyMergeReq), "merge request")
}
