package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/observability"
)

// Poster delivers finished review reports back to the source platform as
// comments. Delivery is best-effort: failures are logged and never affect
// the task's outcome.
type Poster struct {
	factory Factory
	logger  observability.Logger
}

// NewPoster constructs a comment poster.
func NewPoster(factory Factory, logger observability.Logger) *Poster {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Poster{factory: factory, logger: logger}
}

// Post formats and publishes the task's review as a platform comment, if
// the repository has commenting enabled.
func (p *Poster) Post(ctx context.Context, repo domain.Repository, task domain.Task, issues []domain.Issue) {
	if !repo.EnableComment {
		return
	}

	client, err := p.factory.ClientFor(repo)
	if err != nil {
		p.logger.LogWarning(ctx, "comment delivery skipped", map[string]interface{}{
			"task_id": task.ID, "repo_id": repo.ID, "error": err.Error(),
		})
		return
	}

	target := CommentTarget{Strategy: task.Strategy, RevisionRef: task.RevisionRef}
	if err := client.PostReviewComment(ctx, repo, target, FormatCommentBody(task, issues)); err != nil {
		p.logger.LogWarning(ctx, "comment delivery failed", map[string]interface{}{
			"task_id": task.ID, "repo_id": repo.ID, "error": err.Error(),
		})
		return
	}

	p.logger.LogInfo(ctx, "review comment posted", map[string]interface{}{
		"task_id": task.ID, "repo_id": repo.ID,
	})
}

// FormatCommentBody renders the platform comment: a score header, an issue
// table, and the verdict.
func FormatCommentBody(task domain.Task, issues []domain.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Automated Code Review\n\n")
	fmt.Fprintf(&b, "**Quality score: %d/100** - %d issue(s): %d critical, %d warning, %d suggestion\n\n",
		task.QualityScore, task.IssuesCount, task.CriticalCount, task.WarningCount, task.SuggestionCount)

	if len(issues) > 0 {
		b.WriteString("| Severity | File | Line | Issue |\n|---|---|---|---|\n")
		for _, iss := range issues {
			line := ""
			if iss.LineNumber > 0 {
				line = fmt.Sprintf("%d", iss.LineNumber)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				iss.Severity, iss.FilePath, line, sanitizeCell(iss.Title))
		}
		b.WriteString("\n")
	}

	if task.Verdict != "" {
		fmt.Fprintf(&b, "Verdict: %s (risk: %s)\n", task.Verdict, task.RiskLevel)
	}
	return b.String()
}

func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
