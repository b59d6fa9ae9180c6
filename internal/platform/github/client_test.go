package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/platform"
	"github.com/reviewguard/engine/internal/platform/github"
)

func testRepo() domain.Repository {
	return domain.Repository{
		ID:       "repo-1",
		CloneURL: "https://ghe.example.com/team/widget.git",
		Branch:   "main",
		Platform: domain.PlatformGitHub,
		Auth:     domain.Auth{Kind: domain.AuthToken, Token: "ghp_token"},
	}
}

func TestListCommitsSinceCutsAtMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/team/widget/commits", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"sha": "g2", "commit": map[string]interface{}{
				"message": "new",
				"author":  map[string]interface{}{"name": "n", "email": "n@x", "date": "2025-04-02T00:00:00Z"},
			}},
			{"sha": "g1", "commit": map[string]interface{}{
				"message": "old",
				"author":  map[string]interface{}{"name": "n", "email": "n@x", "date": "2025-04-01T00:00:00Z"},
			}},
		})
	}))
	defer server.Close()

	client := github.NewClient()
	client.SetBaseURL(server.URL + "/api/v3/")

	commits, err := client.ListCommitsSince(context.Background(), testRepo(), "main", "g1")
	require.NoError(t, err)

	require.Len(t, commits, 1)
	assert.Equal(t, "g2", commits[0].SHA)
	assert.Equal(t, "new", commits[0].Message)
}

func TestListMergeRequestsSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/team/widget/pulls", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"number": 9, "title": "Add endpoint", "state": "open",
				"updated_at": "2025-04-10T00:00:00Z",
				"user":       map[string]interface{}{"login": "dev"},
				"head":       map[string]interface{}{"ref": "feat", "sha": "h1"},
				"base":       map[string]interface{}{"ref": "main"},
			},
		})
	}))
	defer server.Close()

	client := github.NewClient()
	client.SetBaseURL(server.URL + "/api/v3/")

	mrs, err := client.ListMergeRequestsSince(context.Background(), testRepo(), time.Time{})
	require.NoError(t, err)

	require.Len(t, mrs, 1)
	assert.Equal(t, "9", mrs[0].IID)
	assert.Equal(t, "feat", mrs[0].SourceBranch)
	assert.Equal(t, "dev", mrs[0].AuthorName)
}

func TestPostReviewCommentOnPullRequest(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := github.NewClient()
	client.SetBaseURL(server.URL + "/api/v3/")

	err := client.PostReviewComment(context.Background(), testRepo(),
		platform.CommentTarget{Strategy: domain.StrategyMergeReq, RevisionRef: "9"}, "body")
	require.NoError(t, err)
	assert.Equal(t, "/api/v3/repos/team/widget/issues/9/comments", gotPath)
}
