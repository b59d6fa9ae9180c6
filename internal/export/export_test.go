package export_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/export"
)

func sampleTask() (domain.Task, []domain.Issue) {
	task := domain.Task{
		ID: "task-1", RepoID: "repo-1",
		Strategy: domain.StrategyCommit, RevisionRef: "abc123", Branch: "main",
		Status: domain.TaskCompleted, QualityScore: 87,
		Verdict: "needs work", RiskLevel: domain.RiskMedium,
		FinishedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Report:     "Issue 1: raw text",
	}
	issues := []domain.Issue{
		{
			Severity: domain.SeverityWarning, Title: "unchecked error",
			FilePath: "a.go", LineNumber: 10,
			Description: "the error is dropped",
			CodeSnippet: "_ = doThing()",
			Suggestion:  "if err := doThing(); err != nil { return err }",
		},
	}
	return task, issues
}

func TestRenderMarkdown(t *testing.T) {
	task, issues := sampleTask()

	md := export.RenderMarkdown(task, issues)

	assert.Contains(t, md, "# Review task-1")
	assert.Contains(t, md, "- Quality score: 87/100")
	assert.Contains(t, md, "### 1. [Warning] unchecked error")
	assert.Contains(t, md, "`a.go:10`")
	assert.Contains(t, md, "_ = doThing()")
	assert.Contains(t, md, "## Raw report")
}

func TestRenderMarkdownNoIssues(t *testing.T) {
	task, _ := sampleTask()

	md := export.RenderMarkdown(task, nil)

	assert.Contains(t, md, "## Issues (0)")
	assert.Contains(t, md, "No issues found.")
}

func TestRenderHTML(t *testing.T) {
	task, issues := sampleTask()

	html, err := export.RenderHTML(task, issues)
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Review task-1</title>")
	assert.Contains(t, html, "unchecked error")
	assert.Contains(t, html, `class="severity-warning"`)
	assert.Contains(t, html, "[Warning]")
}

func TestRenderHTMLEscapesContent(t *testing.T) {
	task, issues := sampleTask()
	issues[0].Title = `<script>alert("x")</script>`

	html, err := export.RenderHTML(task, issues)
	require.NoError(t, err)

	assert.NotContains(t, html, `<script>alert`)
	assert.Contains(t, html, "&lt;script&gt;")
}
