// Package github implements the platform client for GitHub and GitHub
// Enterprise on top of google/go-github.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/platform"
)

// Client wraps a go-github client per repository. Enterprise instances are
// addressed by deriving the API base URL from the clone URL host.
type Client struct {
	// httpClient is injected into go-github (for testing).
	httpClient *http.Client

	baseURLOverride string
}

// NewClient creates a GitHub platform client.
func NewClient() *Client {
	return &Client{}
}

// SetBaseURL pins the API base URL (for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURLOverride = baseURL
}

// SetHTTPClient injects the underlying HTTP client (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// apiClient builds a per-repository go-github client: token auth from the
// repo's auth record, enterprise base URLs for non-github.com hosts.
func (c *Client) apiClient(repo domain.Repository) (*gogithub.Client, string, string, error) {
	base, projectPath, err := platform.SplitCloneURL(repo.CloneURL)
	if err != nil {
		return nil, "", "", err
	}
	owner, name, err := platform.SplitOwnerRepo(projectPath)
	if err != nil {
		return nil, "", "", err
	}

	client := gogithub.NewClient(c.httpClient)

	apiBase := c.baseURLOverride
	if apiBase == "" && base != "https://github.com" && base != "http://github.com" {
		apiBase = base + "/api/v3/"
	}
	if apiBase != "" {
		client, err = client.WithEnterpriseURLs(apiBase, apiBase)
		if err != nil {
			return nil, "", "", fmt.Errorf("enterprise base url: %w", err)
		}
	}

	switch repo.Auth.Kind {
	case domain.AuthToken:
		client = client.WithAuthToken(repo.Auth.Token)
	case domain.AuthHTTPBasic:
		client = client.WithAuthToken(repo.Auth.Password)
	}

	return client, owner, name, nil
}

// ListCommitsSince returns commits on branch newer than sinceSHA, oldest
// first.
func (c *Client) ListCommitsSince(ctx context.Context, repo domain.Repository, branch, sinceSHA string) ([]platform.Commit, error) {
	client, owner, name, err := c.apiClient(repo)
	if err != nil {
		return nil, err
	}

	var raw []*gogithub.RepositoryCommit
	err = platform.RetryWithBackoff(ctx, func(ctx context.Context) error {
		commits, resp, listErr := client.Repositories.ListCommits(ctx, owner, name, &gogithub.CommitsListOptions{
			SHA:         branch,
			ListOptions: gogithub.ListOptions{PerPage: 100},
		})
		if listErr != nil {
			return classify(resp, listErr)
		}
		raw = commits
		return nil
	}, platform.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}

	var newest []platform.Commit
	for _, rc := range raw {
		if rc.GetSHA() == sinceSHA {
			break
		}
		commit := platform.Commit{
			SHA:     rc.GetSHA(),
			Message: rc.GetCommit().GetMessage(),
		}
		if author := rc.GetCommit().GetAuthor(); author != nil {
			commit.AuthorName = author.GetName()
			commit.AuthorEmail = author.GetEmail()
			commit.Timestamp = author.GetDate().Time
		}
		newest = append(newest, commit)
	}

	oldestFirst := make([]platform.Commit, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		oldestFirst = append(oldestFirst, newest[i])
	}
	return oldestFirst, nil
}

// ListMergeRequestsSince returns open pull requests updated after since.
func (c *Client) ListMergeRequestsSince(ctx context.Context, repo domain.Repository, since time.Time) ([]platform.MergeRequest, error) {
	client, owner, name, err := c.apiClient(repo)
	if err != nil {
		return nil, err
	}

	var raw []*gogithub.PullRequest
	err = platform.RetryWithBackoff(ctx, func(ctx context.Context) error {
		pulls, resp, listErr := client.PullRequests.List(ctx, owner, name, &gogithub.PullRequestListOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gogithub.ListOptions{PerPage: 50},
		})
		if listErr != nil {
			return classify(resp, listErr)
		}
		raw = pulls
		return nil
	}, platform.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}

	var mrs []platform.MergeRequest
	for _, pr := range raw {
		updated := pr.GetUpdatedAt().Time
		if !since.IsZero() && !updated.After(since) {
			continue
		}
		mrs = append(mrs, platform.MergeRequest{
			IID:          strconv.Itoa(pr.GetNumber()),
			Title:        pr.GetTitle(),
			Description:  pr.GetBody(),
			SourceBranch: pr.GetHead().GetRef(),
			TargetBranch: pr.GetBase().GetRef(),
			SourceSHA:    pr.GetHead().GetSHA(),
			AuthorName:   pr.GetUser().GetLogin(),
			State:        pr.GetState(),
			UpdatedAt:    updated,
		})
	}
	return mrs, nil
}

// PostReviewComment publishes the review body as a commit comment or a
// pull request comment.
func (c *Client) PostReviewComment(ctx context.Context, repo domain.Repository, target platform.CommentTarget, body string) error {
	client, owner, name, err := c.apiClient(repo)
	if err != nil {
		return err
	}

	err = platform.RetryWithBackoff(ctx, func(ctx context.Context) error {
		switch target.Strategy {
		case domain.StrategyMergeReq:
			number, convErr := strconv.Atoi(target.RevisionRef)
			if convErr != nil {
				return &platform.Error{Message: fmt.Sprintf("pull request number %q: %v", target.RevisionRef, convErr)}
			}
			_, resp, postErr := client.Issues.CreateComment(ctx, owner, name, number, &gogithub.IssueComment{
				Body: gogithub.Ptr(body),
			})
			if postErr != nil {
				return classify(resp, postErr)
			}
		default:
			_, resp, postErr := client.Repositories.CreateComment(ctx, owner, name, target.RevisionRef, &gogithub.RepositoryComment{
				Body: gogithub.Ptr(body),
			})
			if postErr != nil {
				return classify(resp, postErr)
			}
		}
		return nil
	}, platform.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("post review comment: %w", err)
	}
	return nil
}

// classify maps a go-github call failure onto the engine's retryable error
// type.
func classify(resp *gogithub.Response, err error) error {
	if resp != nil {
		return platform.NewHTTPError(resp.StatusCode, err.Error())
	}
	return platform.NewNetworkError(err)
}
