// Package platform defines the outbound port to the self-hosted Git
// platforms: listing new commits and merge requests for the poller, and
// posting review comments. Concrete clients live in subpackages.
package platform

import (
	"context"
	"time"

	"github.com/reviewguard/engine/internal/domain"
)

// Commit is one commit returned by a platform's history API.
type Commit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	Timestamp   time.Time
}

// MergeRequest is one open or recently updated merge/pull request.
type MergeRequest struct {
	IID          string
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	SourceSHA    string
	AuthorName   string
	State        string
	UpdatedAt    time.Time
}

// CommentTarget identifies where a review comment should be posted.
type CommentTarget struct {
	Strategy    domain.Strategy
	RevisionRef string
}

// Client is the per-platform API surface the poller and the comment
// adapter consume. Implementations authenticate with the repository's own
// auth record.
type Client interface {
	// ListCommitsSince returns commits on branch newer than sinceSHA, oldest
	// first. An empty sinceSHA returns the most recent page of commits.
	ListCommitsSince(ctx context.Context, repo domain.Repository, branch, sinceSHA string) ([]Commit, error)

	// ListMergeRequestsSince returns the repository's open merge requests
	// that were updated after since; a zero since returns every open one.
	ListMergeRequestsSince(ctx context.Context, repo domain.Repository, since time.Time) ([]MergeRequest, error)

	// PostReviewComment publishes a review report as a comment on the
	// commit or merge request. Delivery is best-effort; failures are
	// logged by the caller and never fail the task.
	PostReviewComment(ctx context.Context, repo domain.Repository, target CommentTarget, body string) error
}

// Factory resolves the Client for a repository's platform.
type Factory interface {
	ClientFor(repo domain.Repository) (Client, error)
}
