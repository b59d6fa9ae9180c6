package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/cli"
	"github.com/reviewguard/engine/internal/store/sqlite"
)

func TestRootCommandTree(t *testing.T) {
	root := cli.NewRootCommand("test")

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "trigger")
	assert.Contains(t, names, "migrate")
	assert.Contains(t, names, "reset-marker")
	assert.Contains(t, names, "repos")
}

// writeConfig points the CLI at an isolated store.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "store:\n  path: " + filepath.Join(dir, "engine.db") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewguard.yaml"), []byte(content), 0o644))
	return dir
}

func TestTriggerCallsEngine(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"status": "queued", "task_id": "t-1"})
	}))
	defer server.Close()

	root := cli.NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"trigger", "repo-1", "--server", server.URL, "--strategy", "commit", "--json"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "/polling/repos/repo-1/trigger", gotPath)
	assert.Contains(t, out.String(), "queued")
}

func TestTriggerEngineUnreachable(t *testing.T) {
	root := cli.NewRootCommand("test")
	root.SetArgs([]string{"trigger", "repo-1", "--server", "http://127.0.0.1:1", "--json"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
}

func TestReposImportExportRoundTrip(t *testing.T) {
	configDir := writeConfig(t)

	snapshot := filepath.Join(t.TempDir(), "repos.yaml")
	require.NoError(t, os.WriteFile(snapshot, []byte(`
repos:
  - id: repo-1
    name: widget
    cloneUrl: https://gitea.example.com/team/widget.git
    branch: main
    platform: gitea
    authKind: token
    authToken: tea-token
    triggerMode: both
    pollingIntervalMinutes: 5
    effectiveFrom: 2025-01-01T00:00:00Z
    pollCommits: true
    enabled: true
`), 0o644))

	root := cli.NewRootCommand("test")
	root.SetArgs([]string{"repos", "import", "-f", snapshot, "--config", configDir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	st, err := sqlite.NewStore(filepath.Join(configDir, "engine.db"))
	require.NoError(t, err)
	repo, err := st.GetRepo(context.Background(), "repo-1")
	require.NoError(t, err)
	st.Close()
	assert.Equal(t, "widget", repo.Name)
	assert.Equal(t, 5, repo.PollingIntervalMinutes)
	assert.Equal(t, "tea-token", repo.Auth.Token)

	root = cli.NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"repos", "export", "--config", configDir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "widget")
	assert.NotContains(t, out.String(), "tea-token", "secrets are omitted on export")
}

func TestResetMarkerUnknownKind(t *testing.T) {
	configDir := writeConfig(t)

	root := cli.NewRootCommand("test")
	root.SetArgs([]string{"reset-marker", "repo-1", "--kind", "bogus", "--config", configDir})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown marker kind")
}
