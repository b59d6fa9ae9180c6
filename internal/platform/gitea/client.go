// Package gitea is a hand-rolled Gitea REST v1 client covering commit
// listing, pull request listing and review comment posting.
package gitea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/platform"
)

const defaultTimeout = 30 * time.Second

// Client is an HTTP client for the Gitea REST API.
type Client struct {
	httpClient *http.Client
	retryConf  platform.RetryConfig

	baseURLOverride string
}

// NewClient creates a Gitea client with the engine's default retry policy.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf:  platform.DefaultRetryConfig(),
	}
}

// SetBaseURL pins all requests to a fixed base URL (for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURLOverride = baseURL
}

func (c *Client) repoEndpoint(repo domain.Repository) (string, error) {
	base, projectPath, err := platform.SplitCloneURL(repo.CloneURL)
	if err != nil {
		return "", err
	}
	if c.baseURLOverride != "" {
		base = c.baseURLOverride
	}
	owner, name, err := platform.SplitOwnerRepo(projectPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/repos/%s/%s", base, url.PathEscape(owner), url.PathEscape(name)), nil
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Date  string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// ListCommitsSince returns commits on branch newer than sinceSHA, oldest
// first. Gitea returns history newest-first; the slice is cut at sinceSHA
// and reversed.
func (c *Client) ListCommitsSince(ctx context.Context, repo domain.Repository, branch, sinceSHA string) ([]platform.Commit, error) {
	endpoint, err := c.repoEndpoint(repo)
	if err != nil {
		return nil, err
	}
	apiURL := fmt.Sprintf("%s/commits?sha=%s&limit=100&stat=false", endpoint, url.QueryEscape(branch))

	var raw []commitResponse
	if err := c.getJSON(ctx, repo, apiURL, &raw); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}

	var newest []platform.Commit
	for _, rc := range raw {
		if rc.SHA == sinceSHA {
			break
		}
		ts, _ := time.Parse(time.RFC3339, rc.Commit.Author.Date)
		newest = append(newest, platform.Commit{
			SHA:         rc.SHA,
			Message:     rc.Commit.Message,
			AuthorName:  rc.Commit.Author.Name,
			AuthorEmail: rc.Commit.Author.Email,
			Timestamp:   ts,
		})
	}

	oldestFirst := make([]platform.Commit, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		oldestFirst = append(oldestFirst, newest[i])
	}
	return oldestFirst, nil
}

type pullResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Head   struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	User struct {
		FullName string `json:"full_name"`
		Login    string `json:"login"`
	} `json:"user"`
	Updated time.Time `json:"updated_at"`
}

// ListMergeRequestsSince returns open pull requests updated after since.
// Gitea has no updated_after filter, so the cut happens client-side.
func (c *Client) ListMergeRequestsSince(ctx context.Context, repo domain.Repository, since time.Time) ([]platform.MergeRequest, error) {
	endpoint, err := c.repoEndpoint(repo)
	if err != nil {
		return nil, err
	}
	apiURL := endpoint + "/pulls?state=open&sort=recentupdate&limit=50"

	var raw []pullResponse
	if err := c.getJSON(ctx, repo, apiURL, &raw); err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}

	var mrs []platform.MergeRequest
	for _, rp := range raw {
		if !since.IsZero() && !rp.Updated.After(since) {
			continue
		}
		author := rp.User.FullName
		if author == "" {
			author = rp.User.Login
		}
		mrs = append(mrs, platform.MergeRequest{
			IID:          strconv.Itoa(rp.Number),
			Title:        rp.Title,
			Description:  rp.Body,
			SourceBranch: rp.Head.Ref,
			TargetBranch: rp.Base.Ref,
			SourceSHA:    rp.Head.SHA,
			AuthorName:   author,
			State:        rp.State,
			UpdatedAt:    rp.Updated,
		})
	}
	return mrs, nil
}

// PostReviewComment publishes the review body as a pull request comment.
// The Gitea API has no commit comment endpoint, so commit-strategy reports
// are delivered only through the dashboard.
func (c *Client) PostReviewComment(ctx context.Context, repo domain.Repository, target platform.CommentTarget, body string) error {
	if target.Strategy != domain.StrategyMergeReq {
		return &platform.Error{Message: "gitea has no commit comment API; skipping commit comment"}
	}

	endpoint, err := c.repoEndpoint(repo)
	if err != nil {
		return err
	}
	apiURL := fmt.Sprintf("%s/issues/%s/comments", endpoint, url.PathEscape(target.RevisionRef))

	if err := c.postJSON(ctx, repo, apiURL, map[string]string{"body": body}); err != nil {
		return fmt.Errorf("post review comment: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, repo domain.Repository, apiURL string, out interface{}) error {
	return c.do(ctx, repo, http.MethodGet, apiURL, nil, out)
}

func (c *Client) postJSON(ctx context.Context, repo domain.Repository, apiURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, repo, http.MethodPost, apiURL, body, nil)
}

func (c *Client) do(ctx context.Context, repo domain.Repository, method, apiURL string, body []byte, out interface{}) error {
	var respBody []byte

	err := platform.RetryWithBackoff(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if reqErr != nil {
			return &platform.Error{Message: reqErr.Error()}
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		applyAuth(req, repo.Auth)

		resp, callErr := c.httpClient.Do(req)
		if callErr != nil {
			return platform.NewNetworkError(callErr)
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return platform.NewNetworkError(readErr)
		}
		if resp.StatusCode >= 400 {
			return platform.NewHTTPError(resp.StatusCode, string(data))
		}
		respBody = data
		return nil
	}, c.retryConf)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func applyAuth(req *http.Request, auth domain.Auth) {
	switch auth.Kind {
	case domain.AuthToken:
		req.Header.Set("Authorization", "token "+auth.Token)
	case domain.AuthHTTPBasic:
		req.SetBasicAuth(auth.User, auth.Password)
	}
}
