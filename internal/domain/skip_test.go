package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewguard/engine/internal/domain"
)

func TestSkipMatcherDefaults(t *testing.T) {
	m := domain.NewSkipMatcher()

	assert.True(t, m.MatchText("hotfix [skip review]"))
	assert.True(t, m.MatchText("docs only [NO REVIEW] please"))
	assert.False(t, m.MatchText("please review this"))
	assert.False(t, m.MatchText("[skipreview]"))
}

func TestSkipMatcherConfiguredPhrases(t *testing.T) {
	m := domain.NewSkipMatcher("#wip", "  ", "[draft]")

	assert.True(t, m.MatchText("still #WIP, do not look"))
	assert.True(t, m.MatchText("[draft] new API"))
	assert.False(t, m.MatchText("hotfix [skip review]"), "defaults replaced, not extended")
}

func TestSkipMatcherZeroValueMatchesNothing(t *testing.T) {
	var m domain.SkipMatcher

	assert.False(t, m.MatchText("hotfix [skip review]"))
}

func TestSkipMatcherMatchPushEvent(t *testing.T) {
	m := domain.NewSkipMatcher()

	field, skip := m.Match(domain.PlatformEvent{
		Kind: domain.EventPush,
		Push: &domain.PushEvent{Message: "wip [skip review]"},
	})
	assert.True(t, skip)
	assert.Equal(t, "commit message", field)

	_, skip = m.Match(domain.PlatformEvent{
		Kind: domain.EventPush,
		Push: &domain.PushEvent{Message: "normal change"},
	})
	assert.False(t, skip)
}

func TestSkipMatcherMatchMergeRequestEvent(t *testing.T) {
	m := domain.NewSkipMatcher()

	field, skip := m.Match(domain.PlatformEvent{
		Kind:         domain.EventMergeRequest,
		MergeRequest: &domain.MergeRequestEvent{Title: "ok", Description: "big refactor [no review]"},
	})
	assert.True(t, skip)
	assert.Equal(t, "merge request description", field)
}

func TestSkipMatcherUnknownEvent(t *testing.T) {
	m := domain.NewSkipMatcher()

	_, skip := m.Match(domain.PlatformEvent{Kind: domain.EventUnknown})
	assert.False(t, skip)
}
