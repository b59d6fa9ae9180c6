package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewguard/engine/internal/domain"
)

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name                          string
		critical, warning, suggestion int
		want                          int
	}{
		{"clean", 0, 0, 0, 100},
		{"one of each", 1, 1, 1, 86},
		{"only suggestions", 0, 0, 5, 95},
		{"clamped at zero", 12, 0, 0, 0},
		{"exactly zero", 10, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.QualityScore(tt.critical, tt.warning, tt.suggestion))
		})
	}
}

func TestDeriveRiskLevel(t *testing.T) {
	assert.Equal(t, domain.RiskHigh, domain.DeriveRiskLevel(1, 0))
	assert.Equal(t, domain.RiskHigh, domain.DeriveRiskLevel(1, 3))
	assert.Equal(t, domain.RiskMedium, domain.DeriveRiskLevel(0, 1))
	assert.Equal(t, domain.RiskLow, domain.DeriveRiskLevel(0, 0))
}

func TestNormalizeCloneURL(t *testing.T) {
	assert.Equal(t,
		"https://git.example.com/team/repo",
		domain.NormalizeCloneURL("https://git.example.com/Team/Repo.GIT"))
	assert.Equal(t,
		"https://git.example.com/team/repo",
		domain.NormalizeCloneURL("https://git.example.com/team/repo"))
}

func TestDeduplicateIssuesKeepsFirstOccurrence(t *testing.T) {
	issues := []domain.Issue{
		{FilePath: "a.go", LineNumber: 10, Title: "t", Description: "first"},
		{FilePath: "a.go", LineNumber: 10, Title: "t", Description: "second"},
		{FilePath: "a.go", LineNumber: 11, Title: "t"},
		{FilePath: "b.go", LineNumber: 10, Title: "t"},
	}

	got := domain.DeduplicateIssues(issues)

	assert.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Description)
}

func TestTaskNonTerminal(t *testing.T) {
	assert.True(t, domain.Task{Status: domain.TaskPending}.NonTerminal())
	assert.True(t, domain.Task{Status: domain.TaskProcessing}.NonTerminal())
	assert.False(t, domain.Task{Status: domain.TaskCompleted}.NonTerminal())
	assert.False(t, domain.Task{Status: domain.TaskFailed}.NonTerminal())
	assert.False(t, domain.Task{Status: domain.TaskCancelled}.NonTerminal())
}

func TestPlatformEventCloneURL(t *testing.T) {
	push := domain.PlatformEvent{
		Kind: domain.EventPush,
		Push: &domain.PushEvent{CloneURL: "https://x/a.git"},
	}
	assert.Equal(t, "https://x/a.git", push.CloneURL())

	unknown := domain.PlatformEvent{Kind: domain.EventUnknown}
	assert.Equal(t, "", unknown.CloneURL())
}
