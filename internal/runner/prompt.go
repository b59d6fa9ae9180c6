package runner

import "github.com/reviewguard/engine/internal/domain"

const commitPreamble = `You are reviewing a single pushed commit. Focus on the
incremental change: correctness regressions, security issues introduced by
the diff, and error handling. Report each finding as a numbered issue
section ("Issue N:") with file path, line, severity label, the problem
code block and a suggested fix.`

const mergeRequestPreamble = `You are reviewing a merge request cumulatively
against its target branch. Judge the change set as a whole: design
coherence, correctness, security, and test coverage. Report each finding
as a numbered issue section ("Issue N:") with file path, line, severity
label, the problem code block and a suggested fix. Close with a Verdict
line, a Risk line, a Key Findings list and a Recommendations list.`

// PreambleFor returns the strategy-specific prompt preamble sent with each
// batch manifest.
func PreambleFor(strategy domain.Strategy) string {
	if strategy == domain.StrategyMergeReq {
		return mergeRequestPreamble
	}
	return commitPreamble
}
