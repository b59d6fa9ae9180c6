// Package export renders finished review tasks as downloadable documents.
package export

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/reviewguard/engine/internal/domain"
)

// RenderMarkdown produces the Markdown export of one task and its issues.
func RenderMarkdown(task domain.Task, issues []domain.Issue) string {
	var b strings.Builder
	caser := cases.Title(language.English)

	fmt.Fprintf(&b, "# Review %s\n\n", task.ID)
	fmt.Fprintf(&b, "- Repository: %s\n", task.RepoID)
	fmt.Fprintf(&b, "- Strategy: %s\n", task.Strategy)
	fmt.Fprintf(&b, "- Revision: %s\n", task.RevisionRef)
	if task.Branch != "" {
		fmt.Fprintf(&b, "- Branch: %s\n", task.Branch)
	}
	fmt.Fprintf(&b, "- Status: %s\n", task.Status)
	if !task.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- Finished: %s\n", task.FinishedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Quality score: %d/100\n", task.QualityScore)
	if task.Verdict != "" {
		fmt.Fprintf(&b, "- Verdict: %s (risk: %s)\n", task.Verdict, task.RiskLevel)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Issues (%d)\n\n", len(issues))
	if len(issues) == 0 {
		b.WriteString("No issues found.\n\n")
	}
	for i, iss := range issues {
		fmt.Fprintf(&b, "### %d. [%s] %s\n\n", i+1, caser.String(string(iss.Severity)), iss.Title)
		if iss.FilePath != "" {
			location := iss.FilePath
			if iss.LineNumber > 0 {
				location = fmt.Sprintf("%s:%d", iss.FilePath, iss.LineNumber)
			}
			fmt.Fprintf(&b, "`%s`\n\n", location)
		}
		if iss.Description != "" {
			b.WriteString(iss.Description + "\n\n")
		}
		if iss.CodeSnippet != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", iss.CodeSnippet)
		}
		if iss.Suggestion != "" {
			fmt.Fprintf(&b, "Suggested:\n\n```\n%s\n```\n\n", iss.Suggestion)
		}
	}

	if task.Report != "" {
		b.WriteString("## Raw report\n\n")
		b.WriteString(task.Report)
		b.WriteString("\n")
	}

	return b.String()
}
