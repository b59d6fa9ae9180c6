package domain

import "time"

// PlatformEventKind tags which variant of PlatformEvent is populated.
type PlatformEventKind string

const (
	EventPush         PlatformEventKind = "push"
	EventMergeRequest PlatformEventKind = "merge_request"
	EventUnknown      PlatformEventKind = "unknown"
)

// PushEvent is a platform-native push notification, normalized across
// GitLab, Gitea and GitHub webhook payloads.
type PushEvent struct {
	CloneURL    string
	Branch      string
	CommitSHA   string
	BaseSHA     string // the "before" revision of the push, if known
	Message     string
	CommitTime  time.Time
	AuthorName  string
	AuthorEmail string
}

// MergeRequestEvent is a platform-native merge/pull request notification,
// normalized across platforms. IID is the platform's merge/pull request
// number, used as RevisionRef for strategy=merge_request tasks.
type MergeRequestEvent struct {
	CloneURL    string
	SourceRef   string
	TargetRef   string
	IID         string
	Title       string
	Description string
	UpdatedAt   time.Time
	AuthorName  string
	AuthorEmail string
	State       string // platform-native state, e.g. "opened", "merged"
}

// PlatformEvent is the decoded, platform-agnostic shape of one inbound
// webhook delivery. Exactly one of Push or MergeRequest is populated when
// Kind is EventPush or EventMergeRequest; Kind=EventUnknown events carry no
// payload but remain observable (they are logged, never silently dropped,
// and never create a task).
type PlatformEvent struct {
	Kind         PlatformEventKind
	Platform     Platform
	Push         *PushEvent
	MergeRequest *MergeRequestEvent
}

// CloneURL returns the repository clone URL carried by the populated
// variant, or "" for unknown events.
func (e PlatformEvent) CloneURL() string {
	switch e.Kind {
	case EventPush:
		return e.Push.CloneURL
	case EventMergeRequest:
		return e.MergeRequest.CloneURL
	default:
		return ""
	}
}
