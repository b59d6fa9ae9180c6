package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reviewguard/engine/internal/domain"
)

// ErrUnparseableBody is returned when a platform payload cannot be decoded.
var ErrUnparseableBody = fmt.Errorf("webhook: unparseable event body")

// Decode turns a platform's native webhook delivery into the tagged
// PlatformEvent union. Event kinds the engine does not act on come back as
// EventUnknown, never as an error.
func Decode(platform domain.Platform, r *http.Request, body []byte) (domain.PlatformEvent, error) {
	switch platform {
	case domain.PlatformGitLab:
		return decodeGitLab(r.Header.Get("X-Gitlab-Event"), body)
	case domain.PlatformGitea:
		return decodeHubStyle(platform, r.Header.Get("X-Gitea-Event"), body)
	case domain.PlatformGitHub:
		return decodeHubStyle(platform, r.Header.Get("X-GitHub-Event"), body)
	default:
		return domain.PlatformEvent{}, fmt.Errorf("unknown platform %q", platform)
	}
}

// --- GitLab ---

type gitlabPushPayload struct {
	Ref     string `json:"ref"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Project struct {
		GitHTTPURL string `json:"git_http_url"`
	} `json:"project"`
	Commits []struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		Author    struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commits"`
}

type gitlabMergeRequestPayload struct {
	Project struct {
		GitHTTPURL string `json:"git_http_url"`
	} `json:"project"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		State        string `json:"state"`
		UpdatedAt    string `json:"updated_at"`
		LastCommit   struct {
			ID        string    `json:"id"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

func decodeGitLab(eventHeader string, body []byte) (domain.PlatformEvent, error) {
	switch eventHeader {
	case "Push Hook":
		var payload gitlabPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		push := &domain.PushEvent{
			CloneURL:  payload.Project.GitHTTPURL,
			Branch:    branchFromRef(payload.Ref),
			CommitSHA: payload.After,
			BaseSHA:   payload.Before,
		}
		// The head commit is the last entry of the commits array.
		if n := len(payload.Commits); n > 0 {
			head := payload.Commits[n-1]
			push.Message = head.Message
			push.CommitTime = head.Timestamp
			push.AuthorName = head.Author.Name
			push.AuthorEmail = head.Author.Email
		}
		return domain.PlatformEvent{Kind: domain.EventPush, Platform: domain.PlatformGitLab, Push: push}, nil

	case "Merge Request Hook":
		var payload gitlabMergeRequestPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		attrs := payload.ObjectAttributes
		updatedAt := attrs.LastCommit.Timestamp
		if ts, err := time.Parse("2006-01-02 15:04:05 MST", attrs.UpdatedAt); err == nil {
			updatedAt = ts
		}
		return domain.PlatformEvent{
			Kind:     domain.EventMergeRequest,
			Platform: domain.PlatformGitLab,
			MergeRequest: &domain.MergeRequestEvent{
				CloneURL:    payload.Project.GitHTTPURL,
				SourceRef:   attrs.SourceBranch,
				TargetRef:   attrs.TargetBranch,
				IID:         strconv.Itoa(attrs.IID),
				Title:       attrs.Title,
				Description: attrs.Description,
				UpdatedAt:   updatedAt,
				AuthorName:  payload.User.Name,
				State:       attrs.State,
			},
		}, nil

	default:
		if !json.Valid(body) {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		return domain.PlatformEvent{Kind: domain.EventUnknown, Platform: domain.PlatformGitLab}, nil
	}
}

// --- GitHub / Gitea (shared webhook shape) ---

type hubPushPayload struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
	HeadCommit *struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		Author    struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"head_commit"`
}

type hubPullRequestPayload struct {
	Action     string `json:"action"`
	Number     int    `json:"number"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
	PullRequest struct {
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		State     string    `json:"state"`
		UpdatedAt time.Time `json:"updated_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

func decodeHubStyle(platform domain.Platform, eventHeader string, body []byte) (domain.PlatformEvent, error) {
	switch eventHeader {
	case "push":
		var payload hubPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		push := &domain.PushEvent{
			CloneURL:  payload.Repository.CloneURL,
			Branch:    branchFromRef(payload.Ref),
			CommitSHA: payload.After,
			BaseSHA:   payload.Before,
		}
		if payload.HeadCommit != nil {
			push.Message = payload.HeadCommit.Message
			push.CommitTime = payload.HeadCommit.Timestamp
			push.AuthorName = payload.HeadCommit.Author.Name
			push.AuthorEmail = payload.HeadCommit.Author.Email
		}
		return domain.PlatformEvent{Kind: domain.EventPush, Platform: platform, Push: push}, nil

	case "pull_request":
		var payload hubPullRequestPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		return domain.PlatformEvent{
			Kind:     domain.EventMergeRequest,
			Platform: platform,
			MergeRequest: &domain.MergeRequestEvent{
				CloneURL:    payload.Repository.CloneURL,
				SourceRef:   payload.PullRequest.Head.Ref,
				TargetRef:   payload.PullRequest.Base.Ref,
				IID:         strconv.Itoa(payload.Number),
				Title:       payload.PullRequest.Title,
				Description: payload.PullRequest.Body,
				UpdatedAt:   payload.PullRequest.UpdatedAt,
				AuthorName:  payload.PullRequest.User.Login,
				State:       payload.PullRequest.State,
			},
		}, nil

	default:
		if !json.Valid(body) {
			return domain.PlatformEvent{}, ErrUnparseableBody
		}
		return domain.PlatformEvent{Kind: domain.EventUnknown, Platform: platform}, nil
	}
}

func branchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
