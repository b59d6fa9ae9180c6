// Package reportparser turns the assistant's natural-language review
// reports into structured issues and summary fields.
package reportparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/reviewguard/engine/internal/domain"
)

// Report is the structured result of parsing one task's merged assistant
// output.
type Report struct {
	Issues          []domain.Issue
	Verdict         string
	RiskLevel       domain.RiskLevel
	KeyFindings     []string
	Recommendations []string

	// Unparsed is set when the text carried no recognizable issue sections
	// or summary labels; the raw report is still retained on the task so
	// operators can inspect it.
	Unparsed bool
}

var (
	thinkTagPattern     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkBracketPattern = regexp.MustCompile(`(?s)\[think\].*?\[/think\]`)

	// issueHeadingPattern matches section headings like "问题 1:", "Issue 2:",
	// optionally prefixed with markdown heading markers or bold markers, with
	// the rest of the heading line carrying the title and severity label.
	issueHeadingPattern = regexp.MustCompile(`(?m)^[#*\s]*(?:问题|Issue)\s*(\d+)\s*[::]\s*(.*)$`)

	fileLinePattern = regexp.MustCompile(`(?im)^[-*\s]*(?:文件|File(?:\s*path)?)\s*[::]\s*` + "`?" + `([^\s` + "`" + `]+)` + "`?")
	lineNumPattern  = regexp.MustCompile(`(?im)^[-*\s]*(?:行号|行|Line(?:\s*number)?)\s*[::]\s*(\d+)`)
	categoryPattern = regexp.MustCompile(`(?im)^[-*\s]*(?:分类|类别|Category)\s*[::]\s*(.+)$`)

	codeBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n(.*?)```")

	verdictPattern   = regexp.MustCompile(`(?im)^[#*\s]*(?:结论|Verdict)\s*[::]\s*(.+)$`)
	riskPattern      = regexp.MustCompile(`(?im)^[#*\s]*(?:风险等级|风险|Risk(?:\s*level)?)\s*[::]\s*(.+)$`)
	findingsHeading  = regexp.MustCompile(`(?im)^[#*\s]*(?:关键发现|Key\s*Findings)\s*[::]?\s*$`)
	recsHeading      = regexp.MustCompile(`(?im)^[#*\s]*(?:改进建议|Recommendations)\s*[::]?\s*$`)
	bulletPattern    = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)
	severityCritical = regexp.MustCompile(`(?i)critical|严重|致命`)
	severityWarning  = regexp.MustCompile(`(?i)warning|警告`)
	severityInfo     = regexp.MustCompile(`(?i)\binfo\b|提示|信息`)
)

// StripThink removes <think>…</think> and [think]…[/think] spans, which
// reasoning models emit before the actual report.
func StripThink(text string) string {
	text = thinkTagPattern.ReplaceAllString(text, "")
	text = thinkBracketPattern.ReplaceAllString(text, "")
	return text
}

// Parse extracts structured issues and summary fields from the merged
// report text for one task.
func Parse(taskID, text string) Report {
	text = StripThink(text)

	issues := parseIssues(taskID, text)
	issues = domain.DeduplicateIssues(issues)

	report := Report{Issues: issues}

	if m := verdictPattern.FindStringSubmatch(text); m != nil {
		report.Verdict = strings.TrimSpace(m[1])
	}
	if m := riskPattern.FindStringSubmatch(text); m != nil {
		report.RiskLevel = normalizeRisk(m[1])
	}
	report.KeyFindings = parseBulletSection(text, findingsHeading)
	report.Recommendations = parseBulletSection(text, recsHeading)

	critical, warning, _ := CountBySeverity(issues)

	if report.Verdict == "" && report.RiskLevel == "" && len(issues) == 0 &&
		len(report.KeyFindings) == 0 && len(report.Recommendations) == 0 {
		report.Unparsed = true
		report.Verdict = "unparsed"
		report.RiskLevel = domain.RiskLow
		return report
	}

	if report.Verdict == "" {
		report.Verdict = "reviewed"
	}
	if report.RiskLevel == "" {
		report.RiskLevel = domain.DeriveRiskLevel(critical, warning)
	}
	return report
}

// CountBySeverity tallies critical, warning and suggestion issues. Info
// issues count toward none of the three and do not affect the score.
func CountBySeverity(issues []domain.Issue) (critical, warning, suggestion int) {
	for _, iss := range issues {
		switch iss.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityWarning:
			warning++
		case domain.SeveritySuggestion:
			suggestion++
		}
	}
	return critical, warning, suggestion
}

func parseIssues(taskID, text string) []domain.Issue {
	headings := issueHeadingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(headings) == 0 {
		return nil
	}

	var issues []domain.Issue
	for i, loc := range headings {
		sectionStart := loc[1]
		sectionEnd := len(text)
		if i+1 < len(headings) {
			sectionEnd = headings[i+1][0]
		}
		headingRest := text[loc[4]:loc[5]]
		section := text[sectionStart:sectionEnd]

		issue := domain.Issue{
			TaskID:   taskID,
			Severity: inferSeverity(headingRest),
			Title:    cleanTitle(headingRest),
		}
		if issue.Title == "" {
			issue.Title = firstNonEmptyLine(section)
		}

		if m := fileLinePattern.FindStringSubmatch(section); m != nil {
			issue.FilePath = strings.TrimSpace(m[1])
		}
		if m := lineNumPattern.FindStringSubmatch(section); m != nil {
			issue.LineNumber, _ = strconv.Atoi(m[1])
		}
		if m := categoryPattern.FindStringSubmatch(section); m != nil {
			issue.Category = strings.TrimSpace(m[1])
		}

		blocks := codeBlockPattern.FindAllStringSubmatch(section, -1)
		if len(blocks) > 0 {
			issue.CodeSnippet = strings.TrimRight(blocks[0][1], "\n")
		}
		if len(blocks) > 1 {
			issue.Suggestion = strings.TrimRight(blocks[1][1], "\n")
		}

		issue.Description = sectionDescription(section)

		issues = append(issues, issue)
	}
	return issues
}

// inferSeverity maps label keywords in an issue heading to a severity;
// unclassified issues default to suggestion.
func inferSeverity(heading string) domain.Severity {
	switch {
	case severityCritical.MatchString(heading):
		return domain.SeverityCritical
	case severityWarning.MatchString(heading):
		return domain.SeverityWarning
	case severityInfo.MatchString(heading):
		return domain.SeverityInfo
	default:
		return domain.SeveritySuggestion
	}
}

var severityLabelPattern = regexp.MustCompile(`(?i)[\[(【（](?:critical|warning|suggestion|info|严重|致命|警告|建议|提示|信息)[\])】）]`)

func cleanTitle(heading string) string {
	title := severityLabelPattern.ReplaceAllString(heading, "")
	title = strings.Trim(title, " \t*#:：-")
	return strings.TrimSpace(title)
}

func firstNonEmptyLine(section string) string {
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return "untitled issue"
}

// sectionDescription keeps the section's prose: key-value lines and code
// blocks are dropped, the remaining lines are joined.
func sectionDescription(section string) string {
	withoutCode := codeBlockPattern.ReplaceAllString(section, "")
	var lines []string
	for _, line := range strings.Split(withoutCode, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if metadataLine(trimmed) {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}

func metadataLine(line string) bool {
	return fileLinePattern.MatchString(line) ||
		lineNumPattern.MatchString(line) ||
		categoryPattern.MatchString(line)
}

func parseBulletSection(text string, heading *regexp.Regexp) []string {
	loc := heading.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	var items []string
	for _, line := range strings.Split(text[loc[1]:], "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			break
		}
		items = append(items, strings.TrimSpace(m[1]))
	}
	return items
}

var (
	riskHighPattern   = regexp.MustCompile(`(?i)high|高`)
	riskMediumPattern = regexp.MustCompile(`(?i)medium|中`)
)

func normalizeRisk(s string) domain.RiskLevel {
	switch {
	case riskHighPattern.MatchString(s):
		return domain.RiskHigh
	case riskMediumPattern.MatchString(s):
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
