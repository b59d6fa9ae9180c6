// Package gitlab is a hand-rolled GitLab REST v4 client covering the three
// operations the engine needs: listing commits, listing merge requests and
// posting review comments.
package gitlab

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

// Client is an HTTP client for the GitLab REST API. The API base URL is
// derived per call from the repository's clone URL, so one Client serves
// every GitLab instance.
type Client struct {
	httpClient *http.Client
	retryConf  platform.RetryConfig

	// baseURLOverride replaces the clone-URL-derived base URL (for testing).
	baseURLOverride string
}

// NewClient creates a GitLab client with the engine's default retry policy.
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

func (c *Client) apiBase(repo domain.Repository) (base, projectPath string, err error) {
	base, projectPath, err = platform.SplitCloneURL(repo.CloneURL)
	if err != nil {
		return "", "", err
	}
	if c.baseURLOverride != "" {
		base = c.baseURLOverride
	}
	return base, projectPath, nil
}

type commitResponse struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListCommitsSince returns commits on branch newer than sinceSHA, oldest
// first. GitLab returns history newest-first; the slice is cut at sinceSHA
// and reversed.
func (c *Client) ListCommitsSince(ctx context.Context, repo domain.Repository, branch, sinceSHA string) ([]platform.Commit, error) {
	base, projectPath, err := c.apiBase(repo)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/commits?ref_name=%s&per_page=100",
		base, url.PathEscape(projectPath), url.QueryEscape(branch))

	var raw []commitResponse
	if err := c.getJSON(ctx, repo, apiURL, &raw); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}

	var newest []platform.Commit
	for _, rc := range raw {
		if rc.ID == sinceSHA {
			break
		}
		newest = append(newest, platform.Commit{
			SHA:         rc.ID,
			Message:     rc.Message,
			AuthorName:  rc.AuthorName,
			AuthorEmail: rc.AuthorEmail,
			Timestamp:   rc.CreatedAt,
		})
	}

	oldestFirst := make([]platform.Commit, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		oldestFirst = append(oldestFirst, newest[i])
	}
	return oldestFirst, nil
}

type mergeRequestResponse struct {
	IID          int       `json:"iid"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	SHA          string    `json:"sha"`
	State        string    `json:"state"`
	UpdatedAt    time.Time `json:"updated_at"`
	Author       struct {
		Name string `json:"name"`
	} `json:"author"`
}

// ListMergeRequestsSince returns open merge requests updated after since.
func (c *Client) ListMergeRequestsSince(ctx context.Context, repo domain.Repository, since time.Time) ([]platform.MergeRequest, error) {
	base, projectPath, err := c.apiBase(repo)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/merge_requests?state=opened&order_by=updated_at&sort=desc&per_page=100",
		base, url.PathEscape(projectPath))
	if !since.IsZero() {
		apiURL += "&updated_after=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var raw []mergeRequestResponse
	if err := c.getJSON(ctx, repo, apiURL, &raw); err != nil {
		return nil, fmt.Errorf("list merge requests: %w", err)
	}

	mrs := make([]platform.MergeRequest, 0, len(raw))
	for _, rm := range raw {
		mrs = append(mrs, platform.MergeRequest{
			IID:          strconv.Itoa(rm.IID),
			Title:        rm.Title,
			Description:  rm.Description,
			SourceBranch: rm.SourceBranch,
			TargetBranch: rm.TargetBranch,
			SourceSHA:    rm.SHA,
			AuthorName:   rm.Author.Name,
			State:        rm.State,
			UpdatedAt:    rm.UpdatedAt,
		})
	}
	return mrs, nil
}

// PostReviewComment publishes the review body as a commit comment or a
// merge request note.
func (c *Client) PostReviewComment(ctx context.Context, repo domain.Repository, target platform.CommentTarget, body string) error {
	base, projectPath, err := c.apiBase(repo)
	if err != nil {
		return err
	}

	var apiURL string
	var payload interface{}
	switch target.Strategy {
	case domain.StrategyMergeReq:
		apiURL = fmt.Sprintf("%s/api/v4/projects/%s/merge_requests/%s/notes",
			base, url.PathEscape(projectPath), url.PathEscape(target.RevisionRef))
		payload = map[string]string{"body": body}
	default:
		apiURL = fmt.Sprintf("%s/api/v4/projects/%s/repository/commits/%s/comments",
			base, url.PathEscape(projectPath), url.PathEscape(target.RevisionRef))
		payload = map[string]string{"note": body}
	}

	if err := c.postJSON(ctx, repo, apiURL, payload); err != nil {
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
		req.Header.Set("PRIVATE-TOKEN", auth.Token)
	case domain.AuthHTTPBasic:
		req.SetBasicAuth(auth.User, auth.Password)
	}
}
