package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/reviewguard/engine/internal/domain"
)

// Manager owns one local mirror per repository under baseDir, each guarded
// by its own mutex so at most one checkout/fetch is live per repo at a
// time.
type Manager struct {
	baseDir string

	mu      sync.Mutex // guards mirrors map
	mirrors map[string]*sync.Mutex
}

// NewManager constructs a Working-Copy Manager rooted at baseDir. baseDir is
// safe to delete wholesale to force re-clone of every repository.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir, mirrors: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-repo mutex, creating it on first use. Callers must
// call the returned unlock function exactly once.
func (m *Manager) Lock(repoID string) func() {
	m.mu.Lock()
	mu, ok := m.mirrors[repoID]
	if !ok {
		mu = &sync.Mutex{}
		m.mirrors[repoID] = mu
	}
	m.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Path returns the local mirror directory for a repository.
func (m *Manager) Path(repo domain.Repository) string {
	if repo.LocalPath != "" {
		return repo.LocalPath
	}
	return filepath.Join(m.baseDir, repo.ID)
}

func authMethod(auth domain.Auth) (transport.AuthMethod, error) {
	switch auth.Kind {
	case domain.AuthNone, "":
		return nil, nil
	case domain.AuthHTTPBasic:
		return &http.BasicAuth{Username: auth.User, Password: auth.Password}, nil
	case domain.AuthToken:
		// GitLab/Gitea/GitHub all accept an arbitrary non-empty username
		// with the token as password over HTTPS.
		return &http.BasicAuth{Username: "token", Password: auth.Token}, nil
	default:
		return nil, fmt.Errorf("unsupported auth kind %q", auth.Kind)
	}
}

// EnsureCloned idempotently makes sure a local mirror exists for repo.
// Credentials are passed to go-git's in-process transport and never touch
// a subprocess environment.
func (m *Manager) EnsureCloned(ctx context.Context, repo domain.Repository) error {
	path := m.Path(repo)

	if _, err := goGit.PlainOpenWithOptions(path, &goGit.PlainOpenOptions{DetectDotGit: true}); err == nil {
		return nil
	}

	auth, err := authMethod(repo.Auth)
	if err != nil {
		return fmt.Errorf("resolve auth: %w", err)
	}

	_, err = goGit.PlainCloneContext(ctx, path, true, &goGit.CloneOptions{
		URL:  repo.CloneURL,
		Auth: auth,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", repo.CloneURL, err)
	}
	return nil
}

// Checkout fetches updates for repo and resets a non-bare working tree at
// ref, returning the checkout path. Callers must hold the per-repo mutex
// (via Lock) for the duration of the checkout plus any reads that follow.
func (m *Manager) Checkout(ctx context.Context, repo domain.Repository, ref string) (string, error) {
	path := m.Path(repo)

	bare, err := goGit.PlainOpenWithOptions(path, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open mirror: %w", err)
	}

	auth, err := authMethod(repo.Auth)
	if err != nil {
		return "", fmt.Errorf("resolve auth: %w", err)
	}

	err = bare.FetchContext(ctx, &goGit.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	})
	if err != nil && err != goGit.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("fetch: %w", err)
	}

	worktreePath := path
	wtRepo := bare
	if isBareMirror(path) {
		worktreePath = filepath.Join(path, "..", repo.ID+"-worktree")
		wtRepo, err = openOrInitWorktree(ctx, path, worktreePath)
		if err != nil {
			return "", fmt.Errorf("prepare worktree: %w", err)
		}
	}

	wt, err := wtRepo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}

	hash, err := resolveRef(wtRepo, ref)
	if err != nil {
		return "", fmt.Errorf("resolve ref %s: %w", ref, err)
	}

	if err := wt.Reset(&goGit.ResetOptions{Commit: hash, Mode: goGit.HardReset}); err != nil {
		return "", fmt.Errorf("reset to %s: %w", ref, err)
	}

	return worktreePath, nil
}

func isBareMirror(path string) bool {
	repo, err := goGit.PlainOpenWithOptions(path, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false
	}
	cfg, err := repo.Config()
	if err != nil {
		return false
	}
	return cfg.Core.IsBare
}

// openOrInitWorktree opens (or clones) the non-bare working tree fronting
// a bare mirror and pulls the mirror's latest refs into it, so freshly
// fetched revisions resolve. The mirror's fetch updates its remote-tracking
// refs rather than its branches, so those are the refs pulled.
func openOrInitWorktree(ctx context.Context, barePath, worktreePath string) (*goGit.Repository, error) {
	repo, err := goGit.PlainOpenWithOptions(worktreePath, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		repo, err = goGit.PlainCloneContext(ctx, worktreePath, false, &goGit.CloneOptions{URL: barePath})
		if err != nil {
			return nil, err
		}
	}

	err = repo.FetchContext(ctx, &goGit.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"+refs/remotes/origin/*:refs/remotes/origin/*"},
	})
	if err != nil && err != goGit.NoErrAlreadyUpToDate {
		return nil, fmt.Errorf("refresh worktree from mirror: %w", err)
	}
	return repo, nil
}

func resolveRef(repo *goGit.Repository, ref string) (plumbing.Hash, error) {
	candidates := []string{ref, "refs/heads/" + ref, "refs/remotes/origin/" + ref}
	var lastErr error
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return *hash, nil
	}
	return plumbing.ZeroHash, lastErr
}
