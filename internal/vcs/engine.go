// Package vcs implements the working-copy manager: one local mirror
// per repository, serialized checkout, changed-file listing, and file
// reads at a revision.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/reviewguard/engine/internal/domain"
)

// ErrFileNotFound is returned by ReadFile when path does not exist at ref.
var ErrFileNotFound = fmt.Errorf("vcs: file not found")

// ListChangedFiles returns the files that differ between baseRef and
// headRef, with per-file addition/deletion counts.
func ListChangedFiles(ctx context.Context, repoDir, baseRef, headRef string) ([]domain.FileDelta, error) {
	out, err := runGitCommand(ctx, repoDir, "diff", "--numstat", baseRef, headRef)
	if err != nil {
		return nil, fmt.Errorf("git diff --numstat: %w", err)
	}
	trimmed := strings.TrimRight(out, "\r\n")
	if trimmed == "" {
		return nil, nil
	}

	var deltas []domain.FileDelta
	for _, line := range strings.Split(trimmed, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		adds, _ := strconv.Atoi(fields[0])
		dels, _ := strconv.Atoi(fields[1])
		path := fields[2]
		if strings.Contains(path, " => ") {
			// rename syntax "old => new" or "{old => new}/path"; keep the
			// destination path.
			path = resolveRenameDestination(path)
		}
		deltas = append(deltas, domain.FileDelta{Path: path, Additions: adds, Deletions: dels})
	}
	return deltas, nil
}

func resolveRenameDestination(path string) string {
	if strings.Contains(path, "{") && strings.Contains(path, "}") {
		start := strings.Index(path, "{")
		end := strings.Index(path, "}")
		inner := path[start+1 : end]
		parts := strings.SplitN(inner, " => ", 2)
		if len(parts) == 2 {
			return path[:start] + parts[1] + path[end+1:]
		}
		return path
	}
	parts := strings.SplitN(path, " => ", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return path
}

// FilePatch returns the unified diff text for a single file between two
// refs, used to assemble per-batch prompts.
func FilePatch(ctx context.Context, repoDir, baseRef, headRef, path string) (string, error) {
	out, err := runGitCommand(ctx, repoDir, "diff", baseRef, headRef, "--", path)
	if err != nil {
		return "", fmt.Errorf("git diff %s: %w", path, err)
	}
	return out, nil
}

// ReadFile returns the content of path as of ref, or ErrFileNotFound.
func ReadFile(ctx context.Context, repoDir, ref, path string) ([]byte, error) {
	out, err := runGitCommandBytes(ctx, repoDir, "show", fmt.Sprintf("%s:%s", ref, path))
	if err != nil {
		if strings.Contains(err.Error(), "exists on disk, but not in") || strings.Contains(err.Error(), "does not exist") {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return out, nil
}

// WorkingTreeDirty reports whether the checkout at repoDir has uncommitted
// modifications. The runner uses this to assert a batch left the working
// copy unchanged.
func WorkingTreeDirty(ctx context.Context, repoDir string) (bool, error) {
	out, err := runGitCommand(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status --porcelain: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// IsBinaryPatch reports whether a unified diff represents a binary file.
func IsBinaryPatch(patchText string) bool {
	return strings.Contains(patchText, "Binary files") || strings.Contains(patchText, "GIT binary patch")
}

func runGitCommand(ctx context.Context, repoDir string, args ...string) (string, error) {
	out, err := runGitCommandBytes(ctx, repoDir, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// runGitCommandBytes shells out to the git binary for local, credential-free
// operations (status, diff, show against an already-fetched mirror). It
// never receives auth material: network operations that do need
// credentials (clone, fetch) go through go-git's in-process transport
// instead, so no subprocess ever inherits repository secrets via its
// environment.
func runGitCommandBytes(ctx context.Context, repoDir string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", repoDir}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{"PATH=" + envPath()}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("git %v: %w", args, ctx.Err())
		}
		if stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("git %v: %w", args, err)
	}
	return stdout.Bytes(), nil
}

func envPath() string {
	return os.Getenv("PATH")
}
