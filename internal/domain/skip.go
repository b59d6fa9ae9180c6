package domain

import "strings"

// DefaultSkipPhrases are the opt-out markers honored when a repository's
// operator has not configured their own set.
var DefaultSkipPhrases = []string{
	"[skip review]",
	"[no review]",
}

// SkipMatcher decides whether an inbound revision asked to bypass review.
// Authors opt out by placing one of the configured phrases in a commit
// message or in a merge request's title or description. The zero value
// matches nothing.
type SkipMatcher struct {
	phrases []string
}

// NewSkipMatcher builds a matcher from the configured phrases, falling
// back to DefaultSkipPhrases when none are given. Phrases are matched as
// case-insensitive substrings; blank entries are dropped.
func NewSkipMatcher(phrases ...string) SkipMatcher {
	if len(phrases) == 0 {
		phrases = DefaultSkipPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return SkipMatcher{phrases: normalized}
}

// MatchText reports whether text contains any configured skip phrase.
func (m SkipMatcher) MatchText(text string) bool {
	if text == "" || len(m.phrases) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// Match inspects the author-controlled text of an event. It returns the
// name of the field that carried the phrase, for use in ignore reasons
// and log lines.
func (m SkipMatcher) Match(event PlatformEvent) (field string, skip bool) {
	switch event.Kind {
	case EventPush:
		if m.MatchText(event.Push.Message) {
			return "commit message", true
		}
	case EventMergeRequest:
		if m.MatchText(event.MergeRequest.Title) {
			return "merge request title", true
		}
		if m.MatchText(event.MergeRequest.Description) {
			return "merge request description", true
		}
	}
	return "", false
}
