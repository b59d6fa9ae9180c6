package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/store/sqlite"
)

func newMigrateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.Store.Path)
			return nil
		},
	}
}

func newResetMarkerCommand(opts *Options) *cobra.Command {
	var branch string
	var kind string

	cmd := &cobra.Command{
		Use:   "reset-marker <repo-id>",
		Short: "Reset a revision marker so the poller re-reviews from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markerKind := domain.MarkerKind(kind)
			if markerKind != domain.MarkerCommit && markerKind != domain.MarkerMR {
				return fmt.Errorf("unknown marker kind %q", kind)
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			repoID := args[0]
			repo, err := st.GetRepo(cmd.Context(), repoID)
			if err != nil {
				return fmt.Errorf("repository %s: %w", repoID, err)
			}
			if branch == "" {
				branch = repo.Branch
			}

			if err := st.Reset(cmd.Context(), repoID, branch, markerKind); err != nil {
				return fmt.Errorf("reset marker: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s marker for %s on %s\n", kind, repoID, branch)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "branch the marker belongs to (defaults to the configured branch)")
	cmd.Flags().StringVar(&kind, "kind", string(domain.MarkerCommit), "marker kind: commit or mr")

	return cmd
}

// repoDocument is the YAML snapshot format for repos import/export.
type repoDocument struct {
	Repos []repoEntry `yaml:"repos"`
}

type repoEntry struct {
	ID                     string `yaml:"id"`
	Name                   string `yaml:"name"`
	CloneURL               string `yaml:"cloneUrl"`
	Branch                 string `yaml:"branch"`
	Platform               string `yaml:"platform"`
	AuthKind               string `yaml:"authKind,omitempty"`
	AuthUser               string `yaml:"authUser,omitempty"`
	AuthPassword           string `yaml:"authPassword,omitempty"`
	AuthToken              string `yaml:"authToken,omitempty"`
	TriggerMode            string `yaml:"triggerMode"`
	PollingIntervalMinutes int    `yaml:"pollingIntervalMinutes"`
	EffectiveFrom          string `yaml:"effectiveFrom,omitempty"`
	WebhookSecret          string `yaml:"webhookSecret,omitempty"`
	PollCommits            bool   `yaml:"pollCommits"`
	PollMRs                bool   `yaml:"pollMRs"`
	EnableComment          bool   `yaml:"enableComment"`
	Enabled                bool   `yaml:"enabled"`
	LocalPath              string `yaml:"localPath,omitempty"`
}

func newReposCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Import or export the repository configuration as YAML",
	}
	cmd.AddCommand(newReposImportCommand(opts))
	cmd.AddCommand(newReposExportCommand(opts))
	return cmd
}

func newReposImportCommand(opts *Options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert repositories from a YAML snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var doc repoDocument
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			for _, entry := range doc.Repos {
				repo, err := entry.toDomain()
				if err != nil {
					return fmt.Errorf("repo %s: %w", entry.ID, err)
				}
				if err := st.UpsertRepository(cmd.Context(), repo); err != nil {
					return fmt.Errorf("upsert %s: %w", entry.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d repositories\n", len(doc.Repos))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "repos.yaml", "YAML snapshot to import")
	return cmd
}

func newReposExportCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the configured repositories as YAML to stdout (secrets omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			repos, err := st.ListRepos(cmd.Context())
			if err != nil {
				return fmt.Errorf("list repos: %w", err)
			}

			doc := repoDocument{}
			for _, repo := range repos {
				doc.Repos = append(doc.Repos, fromDomain(repo))
			}
			out, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func (e repoEntry) toDomain() (domain.Repository, error) {
	repo := domain.Repository{
		ID:       e.ID,
		Name:     e.Name,
		CloneURL: e.CloneURL,
		Branch:   e.Branch,
		Platform: domain.Platform(e.Platform),
		Auth: domain.Auth{
			Kind:     domain.AuthKind(e.AuthKind),
			User:     e.AuthUser,
			Password: e.AuthPassword,
			Token:    e.AuthToken,
		},
		TriggerMode:            domain.TriggerMode(e.TriggerMode),
		PollingIntervalMinutes: e.PollingIntervalMinutes,
		WebhookSecret:          e.WebhookSecret,
		PollCommits:            e.PollCommits,
		PollMRs:                e.PollMRs,
		EnableComment:          e.EnableComment,
		Enabled:                e.Enabled,
		LocalPath:              e.LocalPath,
	}
	if e.EffectiveFrom != "" {
		parsed, err := time.Parse(time.RFC3339, e.EffectiveFrom)
		if err != nil {
			return domain.Repository{}, fmt.Errorf("effectiveFrom: %w", err)
		}
		repo.EffectiveFrom = parsed
	}
	return repo, nil
}

func fromDomain(repo domain.Repository) repoEntry {
	entry := repoEntry{
		ID:                     repo.ID,
		Name:                   repo.Name,
		CloneURL:               repo.CloneURL,
		Branch:                 repo.Branch,
		Platform:               string(repo.Platform),
		AuthKind:               string(repo.Auth.Kind),
		TriggerMode:            string(repo.TriggerMode),
		PollingIntervalMinutes: repo.PollingIntervalMinutes,
		PollCommits:            repo.PollCommits,
		PollMRs:                repo.PollMRs,
		EnableComment:          repo.EnableComment,
		Enabled:                repo.Enabled,
		LocalPath:              repo.LocalPath,
	}
	if !repo.EffectiveFrom.IsZero() {
		entry.EffectiveFrom = repo.EffectiveFrom.UTC().Format(time.RFC3339)
	}
	return entry
}
