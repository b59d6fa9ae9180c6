package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// SplitCloneURL breaks a repository clone URL into the platform base URL
// (scheme + host) and the project path ("group/sub/repo", ".git" stripped).
func SplitCloneURL(cloneURL string) (baseURL, projectPath string, err error) {
	parsed, err := url.Parse(cloneURL)
	if err != nil {
		return "", "", fmt.Errorf("parse clone url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("clone url %q has no scheme or host", cloneURL)
	}

	path := strings.Trim(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if path == "" {
		return "", "", fmt.Errorf("clone url %q has no project path", cloneURL)
	}

	return parsed.Scheme + "://" + parsed.Host, path, nil
}

// SplitOwnerRepo splits a two-segment project path into owner and repo.
// Deeper paths keep everything before the final segment as the owner, which
// matches GitLab subgroup project paths.
func SplitOwnerRepo(projectPath string) (owner, repo string, err error) {
	idx := strings.LastIndex(projectPath, "/")
	if idx <= 0 || idx == len(projectPath)-1 {
		return "", "", fmt.Errorf("project path %q is not owner/repo shaped", projectPath)
	}
	return projectPath[:idx], projectPath[idx+1:], nil
}
