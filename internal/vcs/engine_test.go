package vcs_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/vcs"
)

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// newRepo creates a repository with two commits touching two files and
// returns the directory and the two commit SHAs.
func newRepo(t *testing.T) (dir, first, second string) {
	t.Helper()
	dir = t.TempDir()
	gitRun(t, dir, "init")
	gitRun(t, dir, "config", "user.email", "test@example.com")
	gitRun(t, dir, "config", "user.name", "test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	gitRun(t, dir, "add", ".")
	gitRun(t, dir, "commit", "-m", "first")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.go"), []byte("package main\n"), 0o644))
	gitRun(t, dir, "add", ".")
	gitRun(t, dir, "commit", "-m", "second")

	revParse := func(ref string) string {
		cmd := exec.Command("git", "-C", dir, "rev-parse", ref)
		out, err := cmd.Output()
		require.NoError(t, err)
		return string(out[:len(out)-1])
	}
	return dir, revParse("HEAD~1"), revParse("HEAD")
}

func TestListChangedFiles(t *testing.T) {
	dir, first, second := newRepo(t)

	deltas, err := vcs.ListChangedFiles(context.Background(), dir, first, second)
	require.NoError(t, err)

	require.Len(t, deltas, 2)
	paths := []string{deltas[0].Path, deltas[1].Path}
	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, "util.go")
	for _, d := range deltas {
		if d.Path == "util.go" {
			assert.Equal(t, 1, d.Additions)
		}
	}
}

func TestListChangedFilesEmptyRange(t *testing.T) {
	dir, _, second := newRepo(t)

	deltas, err := vcs.ListChangedFiles(context.Background(), dir, second, second)
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestFilePatch(t *testing.T) {
	dir, first, second := newRepo(t)

	patch, err := vcs.FilePatch(context.Background(), dir, first, second, "main.go")
	require.NoError(t, err)
	assert.Contains(t, patch, "+func main() {}")
}

func TestReadFile(t *testing.T) {
	dir, first, second := newRepo(t)

	content, err := vcs.ReadFile(context.Background(), dir, second, "util.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(content))

	_, err = vcs.ReadFile(context.Background(), dir, first, "util.go")
	assert.ErrorIs(t, err, vcs.ErrFileNotFound)
}

func TestWorkingTreeDirty(t *testing.T) {
	dir, _, _ := newRepo(t)

	dirty, err := vcs.WorkingTreeDirty(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main // touched\n"), 0o644))
	dirty, err = vcs.WorkingTreeDirty(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestIsBinaryPatch(t *testing.T) {
	assert.True(t, vcs.IsBinaryPatch("Binary files a/x.png and b/x.png differ"))
	assert.False(t, vcs.IsBinaryPatch("+added line"))
}

func TestManagerLockSerializesPerRepo(t *testing.T) {
	manager := vcs.NewManager(t.TempDir())

	unlock := manager.Lock("repo-1")
	acquired := make(chan struct{})
	go func() {
		second := manager.Lock("repo-1")
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first still held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}
