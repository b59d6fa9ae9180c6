package webhook_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/ingestion/webhook"
)

const gitlabPush = `{
	"ref": "refs/heads/main",
	"before": "aaa111",
	"after": "bbb222",
	"project": {"git_http_url": "https://gitlab.example.com/group/repo.git"},
	"commits": [
		{"id": "aab", "message": "first", "timestamp": "2025-05-01T09:00:00Z",
		 "author": {"name": "a", "email": "a@x"}},
		{"id": "bbb222", "message": "head commit", "timestamp": "2025-05-01T10:00:00Z",
		 "author": {"name": "dev", "email": "dev@x"}}
	]
}`

func TestDecodeGitLabPush(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", nil)
	req.Header.Set("X-Gitlab-Event", "Push Hook")

	event, err := webhook.Decode(domain.PlatformGitLab, req, []byte(gitlabPush))
	require.NoError(t, err)

	assert.Equal(t, domain.EventPush, event.Kind)
	require.NotNil(t, event.Push)
	assert.Equal(t, "main", event.Push.Branch)
	assert.Equal(t, "bbb222", event.Push.CommitSHA)
	assert.Equal(t, "aaa111", event.Push.BaseSHA)
	assert.Equal(t, "head commit", event.Push.Message)
	assert.Equal(t, "dev", event.Push.AuthorName)
	assert.Equal(t, "https://gitlab.example.com/group/repo.git", event.CloneURL())
}

const gitlabMR = `{
	"project": {"git_http_url": "https://gitlab.example.com/group/repo.git"},
	"user": {"name": "dev"},
	"object_attributes": {
		"iid": 42,
		"title": "Refactor queue",
		"description": "details",
		"source_branch": "feat/queue",
		"target_branch": "main",
		"state": "opened",
		"last_commit": {"id": "ccc333", "timestamp": "2025-05-02T11:00:00Z"}
	}
}`

func TestDecodeGitLabMergeRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", nil)
	req.Header.Set("X-Gitlab-Event", "Merge Request Hook")

	event, err := webhook.Decode(domain.PlatformGitLab, req, []byte(gitlabMR))
	require.NoError(t, err)

	assert.Equal(t, domain.EventMergeRequest, event.Kind)
	require.NotNil(t, event.MergeRequest)
	assert.Equal(t, "42", event.MergeRequest.IID)
	assert.Equal(t, "feat/queue", event.MergeRequest.SourceRef)
	assert.Equal(t, "main", event.MergeRequest.TargetRef)
	assert.Equal(t, "opened", event.MergeRequest.State)
}

func TestDecodeUnknownEventKind(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", nil)
	req.Header.Set("X-Gitlab-Event", "Pipeline Hook")

	event, err := webhook.Decode(domain.PlatformGitLab, req, []byte(`{"object_kind":"pipeline"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, event.Kind)
}

func TestDecodeMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", nil)
	req.Header.Set("X-GitHub-Event", "push")

	_, err := webhook.Decode(domain.PlatformGitHub, req, []byte("not json"))
	assert.ErrorIs(t, err, webhook.ErrUnparseableBody)
}
