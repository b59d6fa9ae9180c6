// Package runner spawns the external code-assistant subprocess once per
// batch, capturing its textual report under a wall-clock time budget.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/reviewguard/engine/internal/determinism"
	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
	"github.com/reviewguard/engine/internal/vcs"
)

// ErrTimeout is returned when a batch exceeds its wall-clock budget and the
// subprocess had to be terminated.
var ErrTimeout = fmt.Errorf("runner: batch timed out")

// ModelConfig carries the inference endpoint configuration handed to the
// assistant for one invocation. Credentials appear only in the child's
// environment, never in the engine's own.
type ModelConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Invocation describes one batch submission to the assistant.
type Invocation struct {
	TaskID       string
	RepoID       string
	CheckoutPath string
	Strategy     domain.Strategy
	RevisionRef  string
	BaseRef      string
	BatchIndex   int
	Files        []string
	Oversize     bool

	PromptPreamble   string
	ContextMapTokens int
	Model            ModelConfig
}

// manifest is the JSON document written to the assistant's stdin.
type manifest struct {
	Strategy         string   `json:"strategy"`
	RevisionRef      string   `json:"revision_ref"`
	BaseRef          string   `json:"base_ref"`
	BatchIndex       int      `json:"batch_index"`
	Files            []string `json:"files"`
	Oversize         bool     `json:"oversize,omitempty"`
	PromptPreamble   string   `json:"prompt_preamble"`
	ContextMapTokens int      `json:"context_map_tokens"`
}

// Options configures a Runner.
type Options struct {
	// Binary is the assistant executable; resolved via PATH if not absolute.
	Binary string

	// BatchTimeout is the per-batch wall-clock budget.
	BatchTimeout time.Duration

	// KillGrace is how long a terminated process gets between SIGTERM and
	// SIGKILL.
	KillGrace time.Duration
}

// DefaultOptions returns the documented defaults: a 30 minute batch budget
// and a 10 second kill grace window.
func DefaultOptions(binary string) Options {
	return Options{
		Binary:       binary,
		BatchTimeout: 30 * time.Minute,
		KillGrace:    10 * time.Second,
	}
}

// Runner invokes the assistant binary. It is safe for concurrent use; each
// Run call owns its subprocess exclusively.
type Runner struct {
	opts   Options
	logger observability.Logger
}

// NewRunner constructs a Runner. A nil logger disables logging.
func NewRunner(opts Options, logger observability.Logger) *Runner {
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 30 * time.Minute
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Runner{opts: opts, logger: logger}
}

// Run executes the assistant for one batch and returns its complete stdout
// as the textual report. Cancellation of ctx terminates the subprocess
// gracefully, then forcibly after the kill grace window. ErrTimeout is
// returned when the batch budget elapsed first.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.BatchTimeout)
	defer cancel()

	stdin, err := json.Marshal(manifest{
		Strategy:         string(inv.Strategy),
		RevisionRef:      inv.RevisionRef,
		BaseRef:          inv.BaseRef,
		BatchIndex:       inv.BatchIndex,
		Files:            inv.Files,
		Oversize:         inv.Oversize,
		PromptPreamble:   inv.PromptPreamble,
		ContextMapTokens: inv.ContextMapTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal batch manifest: %w", err)
	}

	cmd := exec.Command(r.opts.Binary)
	cmd.Dir = inv.CheckoutPath
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Once the assistant exits, output still held open by a child it left
	// behind is drained for at most the kill grace window.
	cmd.WaitDelay = r.opts.KillGrace

	cmd.Env = r.childEnv(inv)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start assistant %s: %w", r.opts.Binary, err)
	}

	waitErr := r.wait(runCtx, cmd)

	if stderr.Len() > 0 {
		r.logger.LogInfo(ctx, "assistant stderr", map[string]interface{}{
			"task_id": inv.TaskID,
			"batch":   inv.BatchIndex,
			"stderr":  stderr.String(),
		})
	}

	r.assertCheckoutClean(inv)

	if waitErr != nil {
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", ErrTimeout
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("assistant exited: %w", waitErr)
	}

	return stdout.String(), nil
}

// wait blocks until the subprocess exits. On context cancellation it sends
// SIGTERM, escalating to SIGKILL after the grace window, and still waits
// for the process so no zombie is left behind.
func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	killTimer := time.AfterFunc(r.opts.KillGrace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	err := <-done
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// childEnv builds the assistant's environment from scratch: PATH and HOME
// so the tool can run, the model endpoint credentials for this batch, and
// a deterministic seed. Nothing else from the engine's environment is
// inherited.
func (r *Runner) childEnv(inv Invocation) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"REVIEW_STRATEGY=" + string(inv.Strategy),
		"REVIEW_SEED=" + strconv.FormatUint(determinism.BatchSeed(inv.RepoID, inv.RevisionRef, inv.BatchIndex), 10),
	}
	if inv.Model.Endpoint != "" {
		env = append(env, "MODEL_ENDPOINT="+inv.Model.Endpoint)
	}
	if inv.Model.APIKey != "" {
		env = append(env, "MODEL_API_KEY="+inv.Model.APIKey)
	}
	if inv.Model.Model != "" {
		env = append(env, "MODEL_NAME="+inv.Model.Model)
	}
	return env
}

// assertCheckoutClean verifies the batch left the working copy unchanged.
// Divergence is logged, not rolled back.
func (r *Runner) assertCheckoutClean(inv Invocation) {
	statusCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dirty, err := vcs.WorkingTreeDirty(statusCtx, inv.CheckoutPath)
	if err != nil {
		r.logger.LogWarning(statusCtx, "could not verify working copy state", map[string]interface{}{
			"task_id": inv.TaskID,
			"batch":   inv.BatchIndex,
			"error":   err.Error(),
		})
		return
	}
	if dirty {
		r.logger.LogWarning(statusCtx, "assistant modified the working copy", map[string]interface{}{
			"task_id": inv.TaskID,
			"batch":   inv.BatchIndex,
			"path":    inv.CheckoutPath,
		})
	}
}
