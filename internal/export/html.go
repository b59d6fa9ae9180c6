package export

import (
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/reviewguard/engine/internal/domain"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"title": func(s domain.Severity) string {
		return cases.Title(language.English).String(string(s))
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Review {{.Task.ID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 60rem; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
pre { background: #f6f8fa; padding: 0.8rem; overflow-x: auto; }
.severity-critical { color: #b00020; font-weight: bold; }
.severity-warning { color: #a06000; font-weight: bold; }
.severity-suggestion { color: #00589b; }
.severity-info { color: #555; }
</style>
</head>
<body>
<h1>Review {{.Task.ID}}</h1>
<table>
<tr><th>Repository</th><td>{{.Task.RepoID}}</td></tr>
<tr><th>Strategy</th><td>{{.Task.Strategy}}</td></tr>
<tr><th>Revision</th><td>{{.Task.RevisionRef}}</td></tr>
<tr><th>Status</th><td>{{.Task.Status}}</td></tr>
<tr><th>Quality score</th><td>{{.Task.QualityScore}}/100</td></tr>
{{if .Task.Verdict}}<tr><th>Verdict</th><td>{{.Task.Verdict}} (risk: {{.Task.RiskLevel}})</td></tr>{{end}}
</table>

<h2>Issues ({{len .Issues}})</h2>
{{range $i, $iss := .Issues}}
<h3><span class="severity-{{$iss.Severity}}">[{{title $iss.Severity}}]</span> {{$iss.Title}}</h3>
{{if $iss.FilePath}}<p><code>{{$iss.FilePath}}{{if $iss.LineNumber}}:{{$iss.LineNumber}}{{end}}</code></p>{{end}}
{{if $iss.Description}}<p>{{$iss.Description}}</p>{{end}}
{{if $iss.CodeSnippet}}<pre>{{$iss.CodeSnippet}}</pre>{{end}}
{{if $iss.Suggestion}}<p>Suggested:</p><pre>{{$iss.Suggestion}}</pre>{{end}}
{{else}}
<p>No issues found.</p>
{{end}}
</body>
</html>
`))

// RenderHTML produces the HTML export of one task and its issues.
func RenderHTML(task domain.Task, issues []domain.Issue) (string, error) {
	var b strings.Builder
	err := htmlTemplate.Execute(&b, struct {
		Task   domain.Task
		Issues []domain.Issue
	}{task, issues})
	if err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return b.String(), nil
}
